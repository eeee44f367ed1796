// Package audit maintains the forensic trail of inbound webhook attempts.
// The recorder owns redaction and the write-ordering guarantee; it holds no
// business logic.
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-webhook-guard/core"
)

// Recorder sanitizes and persists webhook attempts. The pre-dispatch Append
// must succeed so a crash mid-handler still leaves evidence; the outcome
// update after dispatch is best-effort and never blocks the webhook
// response.
type Recorder struct {
	Sink    core.AuditSink
	Logger  core.Logger
	Metrics core.MetricsRecorder
}

func NewRecorder(sink core.AuditSink) *Recorder {
	return &Recorder{Sink: sink}
}

// Record sanitizes the attempt and writes it durably. Callers must not
// dispatch until this returns; an error here means there is no forensic
// record and the delivery cannot safely proceed.
func (r *Recorder) Record(ctx context.Context, attempt core.WebhookAttempt) (string, error) {
	if r == nil || r.Sink == nil {
		return "", fmt.Errorf("audit: recorder sink is not configured")
	}
	if strings.TrimSpace(attempt.Source) == "" {
		return "", fmt.Errorf("audit: attempt source is required")
	}

	attempt.SanitizedHeaders = core.RedactHeaders(attempt.SanitizedHeaders)
	attempt.SanitizedBody = core.RedactSensitiveMap(attempt.SanitizedBody)

	attemptID, err := r.Sink.Append(ctx, attempt)
	if err != nil {
		r.reportSinkFailure(ctx, attempt.Source, "append", err)
		return "", err
	}
	return attemptID, nil
}

// RecordOutcome writes the terminal state for an attempt. Sink failures are
// reported to telemetry and swallowed: the provider cares about whether the
// financial event was accepted, not about the health of the audit store.
func (r *Recorder) RecordOutcome(ctx context.Context, attemptID string, outcome core.AttemptOutcome) {
	if r == nil || r.Sink == nil {
		return
	}
	if strings.TrimSpace(attemptID) == "" {
		return
	}
	if !outcome.Status.IsTerminal() {
		r.reportSinkFailure(ctx, "", "outcome", fmt.Errorf("audit: non-terminal outcome status %q", outcome.Status))
		return
	}
	if err := r.Sink.RecordOutcome(ctx, attemptID, outcome); err != nil {
		r.reportSinkFailure(ctx, "", "outcome", err)
	}
}

func (r *Recorder) reportSinkFailure(ctx context.Context, source string, operation string, cause error) {
	if r.Metrics != nil {
		tags := map[string]string{"operation": operation}
		if strings.TrimSpace(source) != "" {
			tags["source"] = source
		}
		r.Metrics.IncCounter(ctx, "webhooks.audit.sink_failures.total", 1, tags)
	}
	if r.Logger == nil {
		return
	}
	logger := r.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("audit sink write failed",
		"operation", operation,
		"error", cause.Error(),
	)
}
