package sqlstore

import "github.com/goliatone/go-webhook-guard/core"

var (
	_ core.AuditSink     = (*AttemptStore)(nil)
	_ core.AttemptReader = (*AttemptStore)(nil)
	_ core.AuditSink     = (*CachedAttemptStore)(nil)
	_ core.AttemptReader = (*CachedAttemptStore)(nil)
	_ core.ClaimLedger   = (*ClaimStore)(nil)
)
