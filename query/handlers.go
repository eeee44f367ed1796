package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-webhook-guard/core"
)

type GetAttemptQuery struct {
	reader core.AttemptReader
}

func NewGetAttemptQuery(reader core.AttemptReader) *GetAttemptQuery {
	return &GetAttemptQuery{reader: reader}
}

func (q *GetAttemptQuery) Query(ctx context.Context, msg GetAttemptMessage) (core.WebhookAttempt, error) {
	if q == nil || q.reader == nil {
		return core.WebhookAttempt{}, queryDependencyError("query: attempt reader is required")
	}
	return q.reader.Get(ctx, strings.TrimSpace(msg.AttemptID))
}

type ListAttemptsQuery struct {
	reader core.AttemptReader
}

func NewListAttemptsQuery(reader core.AttemptReader) *ListAttemptsQuery {
	return &ListAttemptsQuery{reader: reader}
}

func (q *ListAttemptsQuery) Query(ctx context.Context, msg ListAttemptsMessage) ([]core.WebhookAttempt, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: attempt reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
