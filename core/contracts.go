package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Source identifies the origin of an inbound webhook. Sources are registered
// at startup together with their signing secrets; the constants below cover
// the origins the booking platform receives today.
const (
	SourcePayment   = "payment"
	SourceMessaging = "messaging"
	SourceInternal  = "internal"
)

// AttemptStatus tracks a webhook attempt through its lifecycle.
//
//	received -> rejected | expired              (terminal, signature/timestamp)
//	received -> validated
//	validated -> duplicate | processed | failed (terminal)
type AttemptStatus string

const (
	StatusReceived  AttemptStatus = "received"
	StatusValidated AttemptStatus = "validated"
	StatusProcessed AttemptStatus = "processed"
	StatusFailed    AttemptStatus = "failed"
	StatusDuplicate AttemptStatus = "duplicate"
	StatusExpired   AttemptStatus = "expired"
	StatusRejected  AttemptStatus = "rejected"
)

// WebhookAttempt is the audit record for a single inbound delivery. Everything
// except the outcome fields is immutable once written; the outcome fields
// transition exactly once from unset to a terminal value.
type WebhookAttempt struct {
	ID                 string
	Source             string
	EventType          string
	IdempotencyKey     string
	SignaturePresented string
	SignatureValid     bool
	ClaimedTimestamp   *time.Time
	TimestampValid     bool
	Status             AttemptStatus
	SanitizedHeaders   map[string]string
	SanitizedBody      map[string]any
	ResponseStatus     int
	ResponseSummary    string
	ErrorMessage       string
	ProcessingDuration time.Duration
	CreatedAt          time.Time
}

// AttemptOutcome carries the terminal state written back onto an attempt
// after dispatch resolves.
type AttemptOutcome struct {
	Status          AttemptStatus
	ResponseStatus  int
	ResponseSummary string
	ErrorMessage    string
	Duration        time.Duration
}

// Event is the validated, non-duplicate payload handed to business handlers.
type Event struct {
	Source    string
	Type      string
	Payload   []byte
	Metadata  map[string]any
	AttemptID string
}

// HandlerResult reports what a business handler did with an event.
type HandlerResult struct {
	StatusCode int
	Summary    string
	Metadata   map[string]any
}

// EventHandler is the business-logic collaborator. Implementations live
// outside this module (payment confirmation, cancellation, refunds) and are
// expected to be idempotent as a second line of defense behind the guard.
type EventHandler interface {
	EventType() string
	Handle(ctx context.Context, event Event) (HandlerResult, error)
}

// AuditSink is the storage collaborator for attempt records. Append must be
// durable before dispatch begins; RecordOutcome fires exactly once per
// attempt and must refuse a second terminal transition.
type AuditSink interface {
	Append(ctx context.Context, attempt WebhookAttempt) (string, error)
	RecordOutcome(ctx context.Context, attemptID string, outcome AttemptOutcome) error
}

// AttemptReader serves the operational listing/reconciliation surface.
type AttemptReader interface {
	Get(ctx context.Context, attemptID string) (WebhookAttempt, error)
	List(ctx context.Context, filter AttemptFilter) ([]WebhookAttempt, error)
}

// AttemptFilter narrows attempt listings for reconciliation tooling.
type AttemptFilter struct {
	Source  string
	Status  AttemptStatus
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

// ClaimLedger arbitrates duplicate deliveries. Claim returns true when the
// caller owns (source, key) for the retention window; the insert itself is
// the arbiter, so two concurrent claims for the same key yield exactly one
// true. Keys outside the window may be reclaimed.
//
// Release frees a held claim so a later delivery of the same event can
// claim it again. A claim only stays held when its attempt reached a
// processed or duplicate outcome; attempts that never got that far must
// give the key back, otherwise the provider's retry would be suppressed
// with nothing processed. Releasing an unheld key is a no-op.
type ClaimLedger interface {
	Claim(ctx context.Context, source string, key string, window time.Duration) (bool, error)
	Release(ctx context.Context, source string, key string) error
	PurgeExpired(ctx context.Context) (int, error)
}

// SecretSource resolves the signing secrets for a webhook source. More than
// one secret may be live at once during rotation; verification accepts any.
type SecretSource interface {
	SigningSecrets(ctx context.Context, source string) ([]string, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MetricsRecorder receives operational counters: degraded idempotency mode,
// audit sink failures, per-status attempt totals.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// IsTerminal reports whether a status ends the attempt state machine.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case StatusProcessed, StatusFailed, StatusDuplicate, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine permits moving from s to
// next. Outcome updates rely on this to keep terminal fields write-once.
func (s AttemptStatus) CanTransition(next AttemptStatus) bool {
	switch s {
	case StatusReceived:
		switch next {
		case StatusValidated, StatusRejected, StatusExpired:
			return true
		}
	case StatusValidated:
		switch next {
		case StatusProcessed, StatusFailed, StatusDuplicate:
			return true
		}
	}
	return false
}
