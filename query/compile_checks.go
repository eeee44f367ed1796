package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-webhook-guard/core"
)

var (
	_ gocmd.Querier[GetAttemptMessage, core.WebhookAttempt]     = (*GetAttemptQuery)(nil)
	_ gocmd.Querier[ListAttemptsMessage, []core.WebhookAttempt] = (*ListAttemptsQuery)(nil)
)
