package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-webhook-guard/core"
)

const attemptCacheKeyPrefix = "go-webhook-guard::attempt::v1"

// CachedAttemptStore layers a read cache over attempt lookups for the
// reconciliation surface. Writes go straight through and invalidate the
// cached entry so outcome updates are never served stale. The idempotency
// claims are deliberately NOT cached; only the database insert may
// arbitrate duplicates.
type CachedAttemptStore struct {
	base  *AttemptStore
	cache repositorycache.CacheService
}

func NewCachedAttemptStore(base *AttemptStore, cacheService repositorycache.CacheService) (*CachedAttemptStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base attempt store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: attempt cache service is required")
	}
	return &CachedAttemptStore{base: base, cache: cacheService}, nil
}

// AttemptCacheKey returns the deterministic cache key for one attempt:
// go-webhook-guard::attempt::v1::<attempt_id> with the id URL-path escaped.
func AttemptCacheKey(attemptID string) (string, error) {
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return "", fmt.Errorf("sqlstore: attempt id is required")
	}
	return attemptCacheKeyPrefix + "::" + url.PathEscape(attemptID), nil
}

func (s *CachedAttemptStore) Append(ctx context.Context, attempt core.WebhookAttempt) (string, error) {
	if s == nil || s.base == nil {
		return "", fmt.Errorf("sqlstore: cached attempt store is not configured")
	}
	return s.base.Append(ctx, attempt)
}

func (s *CachedAttemptStore) RecordOutcome(ctx context.Context, attemptID string, outcome core.AttemptOutcome) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached attempt store is not configured")
	}
	if err := s.base.RecordOutcome(ctx, attemptID, outcome); err != nil {
		return err
	}
	cacheKey, err := AttemptCacheKey(attemptID)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	return nil
}

func (s *CachedAttemptStore) Get(ctx context.Context, attemptID string) (core.WebhookAttempt, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.WebhookAttempt{}, fmt.Errorf("sqlstore: cached attempt store is not configured")
	}
	cacheKey, err := AttemptCacheKey(attemptID)
	if err != nil {
		return core.WebhookAttempt{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.WebhookAttempt, error) {
		return s.base.Get(ctx, attemptID)
	})
}

// List always reads through; reconciliation queries are too varied to key.
func (s *CachedAttemptStore) List(ctx context.Context, filter core.AttemptFilter) ([]core.WebhookAttempt, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached attempt store is not configured")
	}
	return s.base.List(ctx, filter)
}
