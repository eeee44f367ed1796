// Package dispatch routes validated, non-duplicate events to registered
// business handlers. It always resolves to a determinate outcome; handler
// errors and panics never reach the transport layer.
package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goliatone/go-webhook-guard/core"
)

// Outcome is the dispatcher's determinate verdict for one event.
type Outcome struct {
	Status    core.AttemptStatus
	Summary   string
	Error     string
	Unhandled bool
}

// Dispatcher holds the eventType -> handler registry. The registry is built
// at startup; unregistered event types are acknowledged as unhandled rather
// than failed, since providers add event types over time and the endpoint
// must not start rejecting them.
type Dispatcher struct {
	Logger  core.Logger
	Metrics core.MetricsRecorder

	mu       sync.RWMutex
	handlers map[string]core.EventHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: map[string]core.EventHandler{},
	}
}

// Register binds a handler to its event type. Double registration is a
// conflict: silently replacing a payment handler is how money goes missing.
func (d *Dispatcher) Register(handler core.EventHandler) error {
	if d == nil {
		return dispatchInternal("dispatch: dispatcher is nil", nil)
	}
	if handler == nil {
		return dispatchBadInput("dispatch: handler is nil", nil)
	}
	eventType := strings.TrimSpace(handler.EventType())
	if eventType == "" {
		return dispatchBadInput("dispatch: handler event type is required", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = map[string]core.EventHandler{}
	}
	if _, exists := d.handlers[eventType]; exists {
		return dispatchConflict(
			fmt.Sprintf("dispatch: handler already registered for event type %q", eventType),
			map[string]any{"event_type": eventType},
		)
	}
	d.handlers[eventType] = handler
	return nil
}

// RegisterFunc adapts a bare function into the handler registry.
func (d *Dispatcher) RegisterFunc(eventType string, fn func(ctx context.Context, event core.Event) (core.HandlerResult, error)) error {
	return d.Register(handlerFunc{eventType: strings.TrimSpace(eventType), fn: fn})
}

// Dispatch routes the event and converts whatever the handler does into a
// terminal attempt status. It never returns an error to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, event core.Event) Outcome {
	if d == nil {
		return Outcome{
			Status: core.StatusFailed,
			Error:  "dispatch: dispatcher is nil",
		}
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return Outcome{
			Status: core.StatusFailed,
			Error:  "dispatch: event type is required",
		}
	}

	handler := d.handlerFor(eventType)
	if handler == nil {
		d.logUnhandled(ctx, event)
		return Outcome{
			Status:    core.StatusProcessed,
			Summary:   "acknowledged, no handler registered",
			Unhandled: true,
		}
	}

	result, err := d.invoke(ctx, handler, event)
	if err != nil {
		d.logHandlerFailure(ctx, event, err)
		return Outcome{
			Status: core.StatusFailed,
			Error:  err.Error(),
		}
	}
	if result.StatusCode >= http.StatusInternalServerError {
		err := fmt.Errorf("dispatch: handler returned status %d", result.StatusCode)
		d.logHandlerFailure(ctx, event, err)
		return Outcome{
			Status:  core.StatusFailed,
			Summary: result.Summary,
			Error:   err.Error(),
		}
	}
	return Outcome{
		Status:  core.StatusProcessed,
		Summary: result.Summary,
	}
}

// invoke shields the pipeline from panicking handlers.
func (d *Dispatcher) invoke(ctx context.Context, handler core.EventHandler, event core.Event) (result core.HandlerResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("dispatch: handler panicked: %v", recovered)
		}
	}()
	return handler.Handle(ctx, event)
}

func (d *Dispatcher) handlerFor(eventType string) core.EventHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[eventType]
}

func (d *Dispatcher) logUnhandled(ctx context.Context, event core.Event) {
	if d.Metrics != nil {
		d.Metrics.IncCounter(ctx, "webhooks.dispatch.unhandled.total", 1, map[string]string{
			"source":     event.Source,
			"event_type": event.Type,
		})
	}
	if d.Logger == nil {
		return
	}
	logger := d.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info("acknowledged webhook with no registered handler",
		"source", event.Source,
		"event_type", event.Type,
	)
}

func (d *Dispatcher) logHandlerFailure(ctx context.Context, event core.Event, cause error) {
	if d.Metrics != nil {
		d.Metrics.IncCounter(ctx, "webhooks.dispatch.failures.total", 1, map[string]string{
			"source":     event.Source,
			"event_type": event.Type,
		})
	}
	if d.Logger == nil {
		return
	}
	logger := d.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("webhook handler failed",
		"source", event.Source,
		"event_type", event.Type,
		"attempt_id", event.AttemptID,
		"error", cause.Error(),
	)
}

type handlerFunc struct {
	eventType string
	fn        func(ctx context.Context, event core.Event) (core.HandlerResult, error)
}

func (h handlerFunc) EventType() string {
	return h.eventType
}

func (h handlerFunc) Handle(ctx context.Context, event core.Event) (core.HandlerResult, error) {
	if h.fn == nil {
		return core.HandlerResult{}, fmt.Errorf("dispatch: handler func is nil")
	}
	return h.fn(ctx, event)
}

var _ core.EventHandler = handlerFunc{}
