package query

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-webhook-guard/core"
)

type stubReader struct {
	attempts map[string]core.WebhookAttempt
	listed   []core.WebhookAttempt
	filter   core.AttemptFilter
}

func (r *stubReader) Get(_ context.Context, attemptID string) (core.WebhookAttempt, error) {
	attempt, ok := r.attempts[attemptID]
	if !ok {
		return core.WebhookAttempt{}, errors.New("attempt not found")
	}
	return attempt, nil
}

func (r *stubReader) List(_ context.Context, filter core.AttemptFilter) ([]core.WebhookAttempt, error) {
	r.filter = filter
	return r.listed, nil
}

func TestGetAttemptQuery_ReturnsAttempt(t *testing.T) {
	reader := &stubReader{attempts: map[string]core.WebhookAttempt{
		"attempt-1": {ID: "attempt-1", Source: core.SourcePayment},
	}}
	q := NewGetAttemptQuery(reader)

	attempt, err := q.Query(context.Background(), GetAttemptMessage{AttemptID: "attempt-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if attempt.ID != "attempt-1" {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
}

func TestGetAttemptQuery_RequiresReader(t *testing.T) {
	q := NewGetAttemptQuery(nil)
	if _, err := q.Query(context.Background(), GetAttemptMessage{AttemptID: "attempt-1"}); err == nil {
		t.Fatalf("expected missing reader to fail")
	}
}

func TestListAttemptsQuery_PassesFilterThrough(t *testing.T) {
	reader := &stubReader{listed: []core.WebhookAttempt{{ID: "attempt-1"}}}
	q := NewListAttemptsQuery(reader)

	listed, err := q.Query(context.Background(), ListAttemptsMessage{Filter: core.AttemptFilter{
		Source: core.SourcePayment,
		Status: core.StatusFailed,
	}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one attempt, got %d", len(listed))
	}
	if reader.filter.Source != core.SourcePayment || reader.filter.Status != core.StatusFailed {
		t.Fatalf("expected filter passed through, got %+v", reader.filter)
	}
}

func TestListAttemptsMessage_Validate(t *testing.T) {
	if err := (ListAttemptsMessage{Filter: core.AttemptFilter{Page: -1}}).Validate(); err == nil {
		t.Fatalf("expected negative page to fail validation")
	}
	if err := (ListAttemptsMessage{}).Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
