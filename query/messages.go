// Package query exposes the read side of the audit trail as go-command
// query messages for reconciliation tooling.
package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-webhook-guard/core"
)

const (
	TypeGetAttempt   = "webhookguard.query.attempt.get"
	TypeListAttempts = "webhookguard.query.attempt.list"
)

type GetAttemptMessage struct {
	AttemptID string
}

func (GetAttemptMessage) Type() string { return TypeGetAttempt }

func (m GetAttemptMessage) Validate() error {
	if strings.TrimSpace(m.AttemptID) == "" {
		return fmt.Errorf("query: attempt id is required")
	}
	return nil
}

type ListAttemptsMessage struct {
	Filter core.AttemptFilter
}

func (ListAttemptsMessage) Type() string { return TypeListAttempts }

func (m ListAttemptsMessage) Validate() error {
	if m.Filter.Page < 0 || m.Filter.PerPage < 0 {
		return fmt.Errorf("query: pagination values must not be negative")
	}
	return nil
}
