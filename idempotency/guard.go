package idempotency

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-guard/core"
)

// Decision is the guard's verdict for a single delivery.
type Decision struct {
	// Claimed is true when this delivery owns the key and should dispatch.
	Claimed bool
	// Duplicate is true when a prior delivery already holds the key inside
	// the retention window.
	Duplicate bool
	// Skipped is true when the provider attached no idempotency key. The
	// guard steps aside entirely: possible double-processing is preferred
	// over blocking legitimate events, and downstream handlers are expected
	// to be idempotent themselves.
	Skipped bool
	// Degraded is true when the ledger was unreachable and the fail-open
	// policy let the delivery through anyway.
	Degraded bool
}

// Guard wraps a ClaimLedger with the module's duplicate-detection policy.
type Guard struct {
	Ledger core.ClaimLedger
	Window time.Duration
	// FailClosed rejects deliveries when the ledger is unreachable instead
	// of letting them through. Default is fail-open: availability of payment
	// confirmation wins over strict exactly-once.
	FailClosed bool
	Logger     core.Logger
	Metrics    core.MetricsRecorder
}

func NewGuard(ledger core.ClaimLedger) *Guard {
	return &Guard{
		Ledger: ledger,
		Window: defaultRetentionWindow,
	}
}

// Check claims (source, key) for this delivery. A false Claimed with
// Duplicate set means a prior attempt inside the window already processed
// the event.
func (g *Guard) Check(ctx context.Context, source string, key string) (Decision, error) {
	if g == nil || g.Ledger == nil {
		return Decision{Claimed: true, Degraded: true}, nil
	}
	if strings.TrimSpace(key) == "" {
		return Decision{Claimed: true, Skipped: true}, nil
	}

	claimed, err := g.Ledger.Claim(ctx, source, key, g.window())
	if err != nil {
		if g.FailClosed {
			return Decision{}, err
		}
		g.reportDegraded(ctx, source, err)
		return Decision{Claimed: true, Degraded: true}, nil
	}
	if !claimed {
		return Decision{Duplicate: true}, nil
	}
	return Decision{Claimed: true}, nil
}

// Release gives back a claim taken by Check when the delivery could not
// reach a processed outcome. Keyless and degraded deliveries held nothing,
// so an empty key or a missing ledger is a no-op.
func (g *Guard) Release(ctx context.Context, source string, key string) error {
	if g == nil || g.Ledger == nil {
		return nil
	}
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return g.Ledger.Release(ctx, source, key)
}

func (g *Guard) window() time.Duration {
	if g != nil && g.Window > 0 {
		return g.Window
	}
	return defaultRetentionWindow
}

// reportDegraded makes ledger outages loud: fail-open is a policy choice,
// not a silent gap.
func (g *Guard) reportDegraded(ctx context.Context, source string, cause error) {
	if g.Metrics != nil {
		g.Metrics.IncCounter(ctx, "webhooks.idempotency.degraded.total", 1, map[string]string{
			"source": source,
		})
	}
	if g.Logger == nil {
		return
	}
	logger := g.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("idempotency ledger unreachable, failing open",
		"source", source,
		"error", cause.Error(),
	)
}
