package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ReplayAttemptMessage] = (*ReplayAttemptCommand)(nil)
	_ gocmd.Commander[PurgeClaimsMessage]   = (*PurgeClaimsCommand)(nil)
)
