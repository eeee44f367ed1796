package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-guard/core"
)

type memorySink struct {
	appended   []core.WebhookAttempt
	outcomes   map[string]core.AttemptOutcome
	appendErr  error
	outcomeErr error
}

func newMemorySink() *memorySink {
	return &memorySink{outcomes: map[string]core.AttemptOutcome{}}
}

func (s *memorySink) Append(_ context.Context, attempt core.WebhookAttempt) (string, error) {
	if s.appendErr != nil {
		return "", s.appendErr
	}
	s.appended = append(s.appended, attempt)
	return "attempt-1", nil
}

func (s *memorySink) RecordOutcome(_ context.Context, attemptID string, outcome core.AttemptOutcome) error {
	if s.outcomeErr != nil {
		return s.outcomeErr
	}
	s.outcomes[attemptID] = outcome
	return nil
}

type countingMetrics struct {
	counters map[string]int64
}

func (m *countingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *countingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func TestRecorder_RedactsBeforeStorage(t *testing.T) {
	sink := newMemorySink()
	recorder := NewRecorder(sink)

	_, err := recorder.Record(context.Background(), core.WebhookAttempt{
		Source: "payment",
		Status: core.StatusValidated,
		SanitizedHeaders: map[string]string{
			"Authorization":     "Bearer live-token",
			"Cookie":            "session=abc",
			"Webhook-Signature": "t=1,v1=deadbeef",
			"Content-Type":      "application/json",
		},
		SanitizedBody: map[string]any{
			"type": "Transaction.Paid",
			"data": map[string]any{
				"payment_id":  "pay_1",
				"card_number": "4242424242424242",
				"nested": map[string]any{
					"api_key": "sk_live_1",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	stored := sink.appended[0]
	for _, header := range []string{"Authorization", "Cookie", "Webhook-Signature"} {
		if stored.SanitizedHeaders[header] != core.RedactedValue {
			t.Fatalf("expected %s header redacted, got %q", header, stored.SanitizedHeaders[header])
		}
	}
	if stored.SanitizedHeaders["Content-Type"] != "application/json" {
		t.Fatalf("expected benign header preserved")
	}

	data := stored.SanitizedBody["data"].(map[string]any)
	if data["card_number"] != core.RedactedValue {
		t.Fatalf("expected card number redacted, got %v", data["card_number"])
	}
	if data["payment_id"] != "pay_1" {
		t.Fatalf("expected traceability field preserved, got %v", data["payment_id"])
	}
	nested := data["nested"].(map[string]any)
	if nested["api_key"] != core.RedactedValue {
		t.Fatalf("expected nested api key redacted, got %v", nested["api_key"])
	}
}

func TestRecorder_AppendFailurePropagates(t *testing.T) {
	sink := newMemorySink()
	sink.appendErr = errors.New("store unreachable")
	metrics := &countingMetrics{}
	recorder := NewRecorder(sink)
	recorder.Metrics = metrics

	if _, err := recorder.Record(context.Background(), core.WebhookAttempt{
		Source: "payment",
		Status: core.StatusValidated,
	}); err == nil {
		t.Fatalf("expected pre-dispatch append failure to propagate")
	}
	if metrics.counters["webhooks.audit.sink_failures.total"] != 1 {
		t.Fatalf("expected sink failure counter, got %v", metrics.counters)
	}
}

func TestRecorder_OutcomeFailureIsSwallowed(t *testing.T) {
	sink := newMemorySink()
	sink.outcomeErr = errors.New("store unreachable")
	metrics := &countingMetrics{}
	recorder := NewRecorder(sink)
	recorder.Metrics = metrics

	recorder.RecordOutcome(context.Background(), "attempt-1", core.AttemptOutcome{
		Status:         core.StatusProcessed,
		ResponseStatus: 200,
		Duration:       5 * time.Millisecond,
	})
	if metrics.counters["webhooks.audit.sink_failures.total"] != 1 {
		t.Fatalf("expected sink failure counter, got %v", metrics.counters)
	}
}

func TestRecorder_RejectsNonTerminalOutcome(t *testing.T) {
	sink := newMemorySink()
	recorder := NewRecorder(sink)

	recorder.RecordOutcome(context.Background(), "attempt-1", core.AttemptOutcome{
		Status: core.StatusValidated,
	})
	if len(sink.outcomes) != 0 {
		t.Fatalf("expected non-terminal outcome to be refused, got %v", sink.outcomes)
	}
}

func TestRecorder_RecordsOutcomeOnce(t *testing.T) {
	sink := newMemorySink()
	recorder := NewRecorder(sink)

	recorder.RecordOutcome(context.Background(), "attempt-1", core.AttemptOutcome{
		Status:         core.StatusFailed,
		ResponseStatus: 200,
		ErrorMessage:   "handler exploded",
	})
	outcome, ok := sink.outcomes["attempt-1"]
	if !ok {
		t.Fatalf("expected outcome recorded")
	}
	if outcome.Status != core.StatusFailed {
		t.Fatalf("expected failed status, got %q", outcome.Status)
	}
}
