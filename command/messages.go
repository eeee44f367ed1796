// Package command exposes the guard's mutating operations as go-command
// messages: replaying a failed attempt against its handler and purging
// expired idempotency claims.
package command

import (
	"fmt"
	"strings"
)

const (
	TypeReplayAttempt = "webhookguard.command.attempt.replay"
	TypePurgeClaims   = "webhookguard.command.claims.purge"
)

// ReplayAttemptMessage requests a re-dispatch of a failed attempt. Replay
// is the reconciliation path for deliveries acknowledged with 200 whose
// handler failed; the provider will not retry them.
type ReplayAttemptMessage struct {
	AttemptID string
}

func (ReplayAttemptMessage) Type() string { return TypeReplayAttempt }

func (m ReplayAttemptMessage) Validate() error {
	if strings.TrimSpace(m.AttemptID) == "" {
		return fmt.Errorf("command: attempt id is required")
	}
	return nil
}

// PurgeClaimsMessage requests removal of idempotency claims whose retention
// window has lapsed.
type PurgeClaimsMessage struct{}

func (PurgeClaimsMessage) Type() string { return TypePurgeClaims }

func (PurgeClaimsMessage) Validate() error { return nil }
