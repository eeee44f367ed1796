package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-webhook-guard/core"
	"github.com/goliatone/go-webhook-guard/dispatch"
)

// ReplayDispatcher is the slice of the dispatcher replay needs.
type ReplayDispatcher interface {
	Dispatch(ctx context.Context, event core.Event) dispatch.Outcome
}

type ReplayAttemptCommand struct {
	reader     core.AttemptReader
	dispatcher ReplayDispatcher
}

func NewReplayAttemptCommand(reader core.AttemptReader, dispatcher ReplayDispatcher) *ReplayAttemptCommand {
	return &ReplayAttemptCommand{reader: reader, dispatcher: dispatcher}
}

// Execute re-dispatches a failed attempt from its sanitized audit record.
// The original attempt stays untouched; its outcome already happened and
// the audit trail must keep saying so.
func (c *ReplayAttemptCommand) Execute(ctx context.Context, msg ReplayAttemptMessage) error {
	if c == nil || c.reader == nil || c.dispatcher == nil {
		return commandDependencyError("command: attempt reader and dispatcher are required")
	}

	attempt, err := c.reader.Get(ctx, strings.TrimSpace(msg.AttemptID))
	if err != nil {
		return err
	}
	if attempt.Status != core.StatusFailed {
		return commandInvalidInputError(
			fmt.Sprintf("command: attempt %q has status %q, only failed attempts can be replayed", attempt.ID, attempt.Status),
		)
	}

	// Redacted fields stay redacted; handlers that need the raw secret
	// values cannot be replayed from the audit trail.
	payload, err := json.Marshal(attempt.SanitizedBody)
	if err != nil {
		return commandDependencyError(fmt.Sprintf("command: encode replay payload: %v", err))
	}

	outcome := c.dispatcher.Dispatch(ctx, core.Event{
		Source:    attempt.Source,
		Type:      attempt.EventType,
		Payload:   payload,
		Metadata:  map[string]any{"replay_of": attempt.ID},
		AttemptID: attempt.ID,
	})
	if outcome.Status == core.StatusFailed {
		return commandOperationError(
			fmt.Sprintf("command: replay of attempt %q failed: %s", attempt.ID, outcome.Error),
		)
	}
	storeResult(ctx, outcome)
	return nil
}

type PurgeClaimsCommand struct {
	ledger core.ClaimLedger
}

func NewPurgeClaimsCommand(ledger core.ClaimLedger) *PurgeClaimsCommand {
	return &PurgeClaimsCommand{ledger: ledger}
}

func (c *PurgeClaimsCommand) Execute(ctx context.Context, _ PurgeClaimsMessage) error {
	if c == nil || c.ledger == nil {
		return commandDependencyError("command: claim ledger is required")
	}
	purged, err := c.ledger.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, purged)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
