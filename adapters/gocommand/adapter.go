package gocommand

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	guardcmd "github.com/goliatone/go-webhook-guard/command"
	"github.com/goliatone/go-webhook-guard/core"
	guardquery "github.com/goliatone/go-webhook-guard/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := gocmd.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(gocmd.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *gocmd.Registry
}

func NewRegistryAdapter(registry *gocmd.Registry) *RegistryAdapter {
	if registry == nil {
		registry = gocmd.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *gocmd.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver gocmd.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver routes registered commands onto a go-job queue registry,
// letting the purge and replay commands run off-request.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd gocmd.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry gocmd.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd gocmd.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry gocmd.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// GuardSubscriptions holds the dispatcher subscriptions for the guard's
// operational surface so a host can tear them down on shutdown.
type GuardSubscriptions struct {
	ReplayAttempt commanddispatcher.Subscription
	PurgeClaims   commanddispatcher.Subscription
	GetAttempt    commanddispatcher.Subscription
	ListAttempts  commanddispatcher.Subscription
}

// Unsubscribe detaches every held subscription. Safe on a nil receiver.
func (s *GuardSubscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for _, sub := range []commanddispatcher.Subscription{
		s.ReplayAttempt, s.PurgeClaims, s.GetAttempt, s.ListAttempts,
	} {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterGuardHandlers wires the replay and purge commands plus the attempt
// queries against one registry and subscribes them on the shared dispatcher.
func RegisterGuardHandlers(
	adapter *RegistryAdapter,
	reader core.AttemptReader,
	ledger core.ClaimLedger,
	dispatcher guardcmd.ReplayDispatcher,
	runnerOpts ...runner.Option,
) (*GuardSubscriptions, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}

	subs := &GuardSubscriptions{}

	replay, err := RegisterAndSubscribe(adapter, guardcmd.NewReplayAttemptCommand(reader, dispatcher), runnerOpts...)
	if err != nil {
		return nil, err
	}
	subs.ReplayAttempt = replay

	purge, err := RegisterAndSubscribe(adapter, guardcmd.NewPurgeClaimsCommand(ledger), runnerOpts...)
	if err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	subs.PurgeClaims = purge

	get, err := RegisterAndSubscribeQuery(adapter, guardquery.NewGetAttemptQuery(reader), runnerOpts...)
	if err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	subs.GetAttempt = get

	list, err := RegisterAndSubscribeQuery(adapter, guardquery.NewListAttemptsQuery(reader), runnerOpts...)
	if err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	subs.ListAttempts = list

	return subs, nil
}
