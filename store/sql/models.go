package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookAttemptRecord struct {
	bun.BaseModel `bun:"table:webhook_attempts,alias:wa"`

	ID                 string            `bun:"id,pk"`
	Source             string            `bun:"source,notnull"`
	EventType          string            `bun:"event_type"`
	IdempotencyKey     string            `bun:"idempotency_key"`
	SignaturePresented string            `bun:"signature_presented"`
	SignatureValid     bool              `bun:"signature_valid,notnull"`
	ClaimedTimestamp   *time.Time        `bun:"claimed_timestamp,nullzero"`
	TimestampValid     bool              `bun:"timestamp_valid,notnull"`
	Status             string            `bun:"status,notnull"`
	SanitizedHeaders   map[string]string `bun:"sanitized_headers,type:jsonb,notnull"`
	SanitizedBody      map[string]any    `bun:"sanitized_body,type:jsonb,notnull"`
	ResponseStatus     int               `bun:"response_status"`
	ResponseSummary    string            `bun:"response_summary"`
	ErrorMessage       string            `bun:"error_message"`
	DurationMS         int64             `bun:"duration_ms"`
	CreatedAt          time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookClaimRecord struct {
	bun.BaseModel `bun:"table:webhook_claims,alias:wc"`

	ID             string    `bun:"id,pk"`
	Source         string    `bun:"source,notnull"`
	IdempotencyKey string    `bun:"idempotency_key,notnull"`
	ClaimedAt      time.Time `bun:"claimed_at,nullzero,notnull"`
	ExpiresAt      time.Time `bun:"expires_at,nullzero,notnull"`
}
