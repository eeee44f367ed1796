package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-webhook-guard/core"
)

// ClaimStore arbitrates duplicates through the unique constraint on
// (source, idempotency_key). The insert is the race arbiter: two concurrent
// deliveries both try to insert, the database admits exactly one, and the
// loser sees a constraint violation rather than a read-then-write race.
type ClaimStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookClaimRecord]

	Now func() time.Time
}

func NewClaimStore(db *bun.DB) (*ClaimStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookClaimRecord](db, claimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid claim repository wiring: %w", err)
		}
	}
	return &ClaimStore{
		db:   db,
		repo: repo,
		Now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *ClaimStore) Claim(ctx context.Context, source string, key string, window time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: claim store is not configured")
	}
	source = strings.TrimSpace(source)
	key = strings.TrimSpace(key)
	if source == "" || key == "" {
		return false, fmt.Errorf("sqlstore: source and idempotency key are required")
	}
	if window <= 0 {
		return false, fmt.Errorf("sqlstore: retention window must be positive")
	}

	now := s.now()
	record := &webhookClaimRecord{
		ID:             uuid.NewString(),
		Source:         source,
		IdempotencyKey: key,
		ClaimedAt:      now,
		ExpiresAt:      now.Add(window),
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return false, fmt.Errorf("sqlstore: claim insert: %w", err)
		}
		return s.reclaimExpired(ctx, source, key, now, window)
	}
	return true, nil
}

// reclaimExpired takes over a claim whose window has lapsed. The expires_at
// guard in the WHERE clause keeps this race-safe: concurrent reclaimers
// match at most one row between them.
func (s *ClaimStore) reclaimExpired(ctx context.Context, source string, key string, now time.Time, window time.Duration) (bool, error) {
	result, err := s.db.NewUpdate().
		Model((*webhookClaimRecord)(nil)).
		Set("claimed_at = ?", now).
		Set("expires_at = ?", now.Add(window)).
		Where("source = ?", source).
		Where("idempotency_key = ?", key).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("sqlstore: reclaim expired: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: reclaim rows affected: %w", err)
	}
	return affected > 0, nil
}

// Release frees a held claim so the event may be claimed again, used when
// the claiming attempt never reached a processed outcome. Deleting a row
// that is already gone is fine; release is idempotent.
func (s *ClaimStore) Release(ctx context.Context, source string, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: claim store is not configured")
	}
	source = strings.TrimSpace(source)
	key = strings.TrimSpace(key)
	if source == "" || key == "" {
		return fmt.Errorf("sqlstore: source and idempotency key are required")
	}
	if _, err := s.db.NewDelete().
		Model((*webhookClaimRecord)(nil)).
		Where("source = ?", source).
		Where("idempotency_key = ?", key).
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: release claim: %w", err)
	}
	return nil
}

func (s *ClaimStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: claim store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*webhookClaimRecord)(nil)).
		Where("expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: purge expired claims: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: purge rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *ClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.ClaimLedger = (*ClaimStore)(nil)
