// Package idempotency decides whether an inbound event has already been
// accepted for processing inside the retention window. The durable insert is
// the arbiter of duplication; there are no in-process locks guarding
// correctness because the service runs as multiple instances.
package idempotency

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-guard/core"
)

const defaultRetentionWindow = 24 * time.Hour
const defaultLedgerMaxEntries = 8192

// MemoryClaimLedger is a single-node ClaimLedger for tests and embedded
// deployments. Production deployments use the SQL-backed ledger, whose
// unique index arbitrates across instances.
type MemoryClaimLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	entries    map[string]time.Time
	Now        func() time.Time
}

func NewMemoryClaimLedger(defaultWindow time.Duration) *MemoryClaimLedger {
	return NewMemoryClaimLedgerWithLimits(defaultWindow, defaultLedgerMaxEntries)
}

func NewMemoryClaimLedgerWithLimits(defaultWindow time.Duration, maxEntries int) *MemoryClaimLedger {
	if defaultWindow <= 0 {
		defaultWindow = defaultRetentionWindow
	}
	if maxEntries <= 0 {
		maxEntries = defaultLedgerMaxEntries
	}
	return &MemoryClaimLedger{
		defaultTTL: defaultWindow,
		maxEntries: maxEntries,
		entries:    map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryClaimLedger) Claim(_ context.Context, source string, key string, window time.Duration) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("idempotency: claim ledger is not configured")
	}
	source = strings.TrimSpace(source)
	key = strings.TrimSpace(key)
	if source == "" || key == "" {
		return false, fmt.Errorf("idempotency: source and key are required")
	}
	if window <= 0 {
		window = l.defaultTTL
	}
	entry := source + ":" + key
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneExpiredLocked(now)
	if expiresAt, ok := l.entries[entry]; ok {
		if now.Before(expiresAt) {
			return false, nil
		}
		delete(l.entries, entry)
	}
	l.enforceCapacityLocked(1)
	l.entries[entry] = now.Add(window)
	return true, nil
}

func (l *MemoryClaimLedger) Release(_ context.Context, source string, key string) error {
	if l == nil {
		return fmt.Errorf("idempotency: claim ledger is not configured")
	}
	source = strings.TrimSpace(source)
	key = strings.TrimSpace(key)
	if source == "" || key == "" {
		return fmt.Errorf("idempotency: source and key are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, source+":"+key)
	return nil
}

func (l *MemoryClaimLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("idempotency: claim ledger is not configured")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := 0
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
			pruned++
		}
	}
	return pruned, nil
}

func (l *MemoryClaimLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryClaimLedger) pruneExpiredLocked(now time.Time) {
	for key, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, key)
		}
	}
}

func (l *MemoryClaimLedger) enforceCapacityLocked(incoming int) {
	if l.maxEntries <= 0 {
		return
	}
	target := l.maxEntries - incoming
	if target < 0 {
		target = 0
	}
	for len(l.entries) > target {
		l.evictOldestLocked()
	}
}

func (l *MemoryClaimLedger) evictOldestLocked() {
	var oldestKey string
	var oldestExpiry time.Time
	for key, expiry := range l.entries {
		if oldestKey == "" || expiry.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = expiry
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}

var _ core.ClaimLedger = (*MemoryClaimLedger)(nil)
