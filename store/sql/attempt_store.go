// Package sqlstore persists the audit trail and the idempotency claims on
// Postgres or SQLite through bun. The attempt table is append-mostly: the
// only update ever issued is the single terminal outcome write.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-webhook-guard/core"
)

const defaultAttemptPageSize = 50

type AttemptStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookAttemptRecord]

	Now func() time.Time
}

func NewAttemptStore(db *bun.DB) (*AttemptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookAttemptRecord](db, attemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid attempt repository wiring: %w", err)
		}
	}
	return &AttemptStore{
		db:   db,
		repo: repo,
		Now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *AttemptStore) Append(ctx context.Context, attempt core.WebhookAttempt) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("sqlstore: attempt store is not configured")
	}
	source := strings.TrimSpace(attempt.Source)
	if source == "" {
		return "", fmt.Errorf("sqlstore: attempt source is required")
	}

	record := attemptToRecord(attempt)
	record.Source = source
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	record.UpdatedAt = s.now()
	if record.Status == "" {
		record.Status = string(core.StatusReceived)
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return "", fmt.Errorf("sqlstore: append attempt: %w", err)
	}
	return record.ID, nil
}

// RecordOutcome writes the terminal state exactly once. The status guard in
// the WHERE clause is the arbiter: a second writer matches zero rows and
// gets a conflict instead of silently overwriting the first outcome.
func (s *AttemptStore) RecordOutcome(ctx context.Context, attemptID string, outcome core.AttemptOutcome) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: attempt store is not configured")
	}
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return fmt.Errorf("sqlstore: attempt id is required")
	}
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("sqlstore: outcome status %q is not terminal", outcome.Status)
	}

	result, err := s.db.NewUpdate().
		Model((*webhookAttemptRecord)(nil)).
		Set("status = ?", string(outcome.Status)).
		Set("response_status = ?", outcome.ResponseStatus).
		Set("response_summary = ?", outcome.ResponseSummary).
		Set("error_message = ?", outcome.ErrorMessage).
		Set("duration_ms = ?", outcome.Duration.Milliseconds()).
		Set("updated_at = ?", s.now()).
		Where("id = ?", attemptID).
		Where("status IN (?)", bun.In([]string{
			string(core.StatusReceived),
			string(core.StatusValidated),
		})).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: record outcome: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: record outcome rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, attemptID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("sqlstore: attempt %q already holds a terminal outcome", attemptID)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (core.WebhookAttempt, error) {
	if s == nil || s.db == nil {
		return core.WebhookAttempt{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	record := &webhookAttemptRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(attemptID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.WebhookAttempt{}, fmt.Errorf("sqlstore: attempt %q not found", attemptID)
		}
		return core.WebhookAttempt{}, err
	}
	return attemptToDomain(record), nil
}

func (s *AttemptStore) List(ctx context.Context, filter core.AttemptFilter) ([]core.WebhookAttempt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: attempt store is not configured")
	}

	var records []*webhookAttemptRecord
	query := s.db.NewSelect().Model(&records)
	if source := strings.TrimSpace(filter.Source); source != "" {
		query = query.Where("?TableAlias.source = ?", source)
	}
	if filter.Status != "" {
		query = query.Where("?TableAlias.status = ?", string(filter.Status))
	}
	if filter.From != nil {
		query = query.Where("?TableAlias.created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("?TableAlias.created_at < ?", filter.To.UTC())
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultAttemptPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	query = query.
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage)

	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("sqlstore: list attempts: %w", err)
	}

	attempts := make([]core.WebhookAttempt, 0, len(records))
	for _, record := range records {
		attempts = append(attempts, attemptToDomain(record))
	}
	return attempts, nil
}

func (s *AttemptStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func attemptToRecord(attempt core.WebhookAttempt) *webhookAttemptRecord {
	record := &webhookAttemptRecord{
		ID:                 attempt.ID,
		Source:             attempt.Source,
		EventType:          attempt.EventType,
		IdempotencyKey:     attempt.IdempotencyKey,
		SignaturePresented: attempt.SignaturePresented,
		SignatureValid:     attempt.SignatureValid,
		TimestampValid:     attempt.TimestampValid,
		Status:             string(attempt.Status),
		SanitizedHeaders:   attempt.SanitizedHeaders,
		SanitizedBody:      attempt.SanitizedBody,
		ResponseStatus:     attempt.ResponseStatus,
		ResponseSummary:    attempt.ResponseSummary,
		ErrorMessage:       attempt.ErrorMessage,
		DurationMS:         attempt.ProcessingDuration.Milliseconds(),
		CreatedAt:          attempt.CreatedAt,
	}
	if record.SanitizedHeaders == nil {
		record.SanitizedHeaders = map[string]string{}
	}
	if record.SanitizedBody == nil {
		record.SanitizedBody = map[string]any{}
	}
	if attempt.ClaimedTimestamp != nil {
		value := attempt.ClaimedTimestamp.UTC()
		record.ClaimedTimestamp = &value
	}
	return record
}

func attemptToDomain(record *webhookAttemptRecord) core.WebhookAttempt {
	if record == nil {
		return core.WebhookAttempt{}
	}
	attempt := core.WebhookAttempt{
		ID:                 record.ID,
		Source:             record.Source,
		EventType:          record.EventType,
		IdempotencyKey:     record.IdempotencyKey,
		SignaturePresented: record.SignaturePresented,
		SignatureValid:     record.SignatureValid,
		TimestampValid:     record.TimestampValid,
		Status:             core.AttemptStatus(record.Status),
		SanitizedHeaders:   record.SanitizedHeaders,
		SanitizedBody:      record.SanitizedBody,
		ResponseStatus:     record.ResponseStatus,
		ResponseSummary:    record.ResponseSummary,
		ErrorMessage:       record.ErrorMessage,
		ProcessingDuration: time.Duration(record.DurationMS) * time.Millisecond,
		CreatedAt:          record.CreatedAt,
	}
	if record.ClaimedTimestamp != nil {
		value := record.ClaimedTimestamp.UTC()
		attempt.ClaimedTimestamp = &value
	}
	return attempt
}
