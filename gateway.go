// Package webhookguard authenticates inbound payment-provider webhooks,
// suppresses duplicate deliveries, and keeps a sanitized audit trail of
// every attempt. The Gateway composes the leaf packages into the pipeline:
//
//	verify signature -> claim idempotency key -> durable audit write ->
//	dispatch -> record outcome
//
// Business handlers (payment confirmation, cancellation, refunds) are
// external collaborators registered on the dispatcher.
package webhookguard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-webhook-guard/audit"
	"github.com/goliatone/go-webhook-guard/core"
	"github.com/goliatone/go-webhook-guard/dispatch"
	"github.com/goliatone/go-webhook-guard/idempotency"
	"github.com/goliatone/go-webhook-guard/signature"
)

// Delivery is one raw inbound webhook as received on the wire. Body holds
// the exact bytes the provider sent; signature verification depends on them
// staying untouched.
type Delivery struct {
	Source  string
	Headers map[string]string
	Body    []byte
}

// Receipt is the terminal result of processing one delivery.
type Receipt struct {
	AttemptID  string
	Status     core.AttemptStatus
	HTTPStatus int
	Duplicate  bool
	Degraded   bool
	Unhandled  bool
}

// ParsedEvent is what the event parser extracts from a delivery before
// dispatch.
type ParsedEvent struct {
	Type           string
	IdempotencyKey string
	Fields         map[string]any
}

// EventParser pulls the event type and provider-assigned idempotency key out
// of a delivery. The default implementation reads the JSON body; sources
// with bespoke envelopes can install their own.
type EventParser func(delivery Delivery) (ParsedEvent, error)

// Gateway orchestrates the webhook trust pipeline for all registered
// sources.
type Gateway struct {
	config     core.Config
	secrets    core.SecretSource
	verifier   signature.Verifier
	guard      *idempotency.Guard
	recorder   *audit.Recorder
	dispatcher *dispatch.Dispatcher
	parser     EventParser
	logger     core.Logger
	metrics    core.MetricsRecorder
	now        func() time.Time
}

type gatewayBuilder struct {
	runtimeConfig   core.Config
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
	secrets         core.SecretSource
	sink            core.AuditSink
	ledger          core.ClaimLedger
	dispatcher      *dispatch.Dispatcher
	parser          EventParser
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metrics         core.MetricsRecorder
	now             func() time.Time
}

type Option func(*gatewayBuilder)

func WithConfig(cfg core.Config) Option {
	return func(b *gatewayBuilder) {
		b.runtimeConfig = cfg
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *gatewayBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *gatewayBuilder) {
		b.optionsResolver = resolver
	}
}

func WithSecretSource(secrets core.SecretSource) Option {
	return func(b *gatewayBuilder) {
		b.secrets = secrets
	}
}

func WithAuditSink(sink core.AuditSink) Option {
	return func(b *gatewayBuilder) {
		b.sink = sink
	}
}

func WithClaimLedger(ledger core.ClaimLedger) Option {
	return func(b *gatewayBuilder) {
		b.ledger = ledger
	}
}

func WithDispatcher(dispatcher *dispatch.Dispatcher) Option {
	return func(b *gatewayBuilder) {
		b.dispatcher = dispatcher
	}
}

func WithEventParser(parser EventParser) Option {
	return func(b *gatewayBuilder) {
		b.parser = parser
	}
}

func WithLogger(logger core.Logger) Option {
	return func(b *gatewayBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *gatewayBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(b *gatewayBuilder) {
		b.metrics = metrics
	}
}

func WithNow(now func() time.Time) Option {
	return func(b *gatewayBuilder) {
		b.now = now
	}
}

// New builds a Gateway. A SecretSource and an AuditSink are required; the
// claim ledger defaults to the in-memory single-node implementation.
func New(opts ...Option) (*Gateway, error) {
	builder := gatewayBuilder{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("webhook-guard", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("webhook-guard"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	builder.logger = logger

	if builder.metrics == nil {
		builder.metrics = core.NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}

	if builder.secrets == nil {
		return nil, fmt.Errorf("webhookguard: secret source is required")
	}
	if builder.sink == nil {
		return nil, fmt.Errorf("webhookguard: audit sink is required")
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, fmt.Errorf("webhookguard: load config: %w", err)
	}
	cfg, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, fmt.Errorf("webhookguard: resolve config: %w", err)
	}

	ledger := builder.ledger
	if ledger == nil {
		ledger = idempotency.NewMemoryClaimLedger(cfg.Idempotency.RetentionWindow)
	}
	guard := idempotency.NewGuard(ledger)
	guard.Window = cfg.Idempotency.RetentionWindow
	guard.FailClosed = cfg.Idempotency.FailClosed
	guard.Logger = builder.logger
	guard.Metrics = builder.metrics

	recorder := audit.NewRecorder(builder.sink)
	recorder.Logger = builder.logger
	recorder.Metrics = builder.metrics

	dispatcher := builder.dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.NewDispatcher()
	}
	dispatcher.Logger = builder.logger
	dispatcher.Metrics = builder.metrics

	verifier := signature.NewVerifier()
	verifier.Header = cfg.Signature.Header
	verifier.StaleAfter = cfg.Signature.StaleAfter
	verifier.FutureSkew = cfg.Signature.FutureSkew
	verifier.Now = builder.now

	parser := builder.parser
	if parser == nil {
		parser = DefaultEventParser
	}

	return &Gateway{
		config:     cfg,
		secrets:    builder.secrets,
		verifier:   verifier,
		guard:      guard,
		recorder:   recorder,
		dispatcher: dispatcher,
		parser:     parser,
		logger:     builder.logger,
		metrics:    builder.metrics,
		now:        builder.now,
	}, nil
}

// Dispatcher exposes the handler registry so callers can bind business
// handlers after construction.
func (g *Gateway) Dispatcher() *dispatch.Dispatcher {
	if g == nil {
		return nil
	}
	return g.dispatcher
}

// Config returns the resolved runtime configuration.
func (g *Gateway) Config() core.Config {
	if g == nil {
		return core.Config{}
	}
	return g.config
}

// Process runs one delivery through the full pipeline and always resolves
// to a Receipt unless the infrastructure itself failed before any security
// or business decision could be made.
func (g *Gateway) Process(ctx context.Context, delivery Delivery) (Receipt, error) {
	if g == nil {
		return Receipt{}, fmt.Errorf("webhookguard: gateway is not configured")
	}
	startedAt := g.clock()

	source := strings.TrimSpace(delivery.Source)
	if source == "" {
		return Receipt{}, gatewayBadInput("webhookguard: delivery source is required")
	}
	delivery.Source = source

	secrets, err := g.secrets.SigningSecrets(ctx, source)
	if err != nil || len(secrets) == 0 {
		// No security decision is possible without the signing secret;
		// this is an infrastructure fault, not a rejection.
		return Receipt{}, gatewayInternal(
			fmt.Sprintf("webhookguard: signing secrets unavailable for source %q", source), err)
	}

	verdict := g.verifier.Verify(delivery.Headers, delivery.Body, secrets...)
	if !verdict.Valid {
		return g.reject(ctx, delivery, verdict, startedAt), nil
	}

	parsed, err := g.parser(delivery)
	if err != nil {
		// An authenticated payload we cannot parse at all is an
		// infrastructure fault: no business decision was made.
		return Receipt{}, gatewayInternal("webhookguard: parse delivery payload", err)
	}

	attempt := core.WebhookAttempt{
		Source:             source,
		EventType:          parsed.Type,
		IdempotencyKey:     parsed.IdempotencyKey,
		SignaturePresented: headerValue(delivery.Headers, g.verifier.Header),
		SignatureValid:     true,
		ClaimedTimestamp:   verdict.ClaimedTimestamp,
		TimestampValid:     true,
		SanitizedHeaders:   delivery.Headers,
		SanitizedBody:      parsed.Fields,
		CreatedAt:          startedAt,
	}

	decision, err := g.guard.Check(ctx, source, parsed.IdempotencyKey)
	if err != nil {
		// Fail-closed policy: the ledger outage blocks the delivery.
		return Receipt{}, gatewayInternal("webhookguard: idempotency check", err)
	}
	if decision.Duplicate {
		attempt.Status = core.StatusDuplicate
		attempt.ResponseStatus = http.StatusOK
		attempt.ResponseSummary = "duplicate delivery suppressed"
		attempt.ProcessingDuration = g.clock().Sub(startedAt)
		attemptID, _ := g.recorder.Record(ctx, attempt)
		receipt := Receipt{
			AttemptID:  attemptID,
			Status:     core.StatusDuplicate,
			HTTPStatus: http.StatusOK,
			Duplicate:  true,
		}
		g.observe(ctx, receipt, startedAt)
		return receipt, nil
	}

	attempt.Status = core.StatusValidated
	attemptID, err := g.recorder.Record(ctx, attempt)
	if err != nil {
		// Write-before-dispatch: without a durable attempt record there is
		// no forensic trail, so the delivery must not proceed. The claim
		// goes back too; the provider's retry must not be suppressed as a
		// duplicate when nothing was recorded or dispatched.
		g.releaseClaim(ctx, source, parsed.IdempotencyKey)
		return Receipt{}, gatewayAuditUnavailable(err)
	}

	outcome := g.dispatch(ctx, core.Event{
		Source:    source,
		Type:      parsed.Type,
		Payload:   delivery.Body,
		AttemptID: attemptID,
	})

	duration := g.clock().Sub(startedAt)
	g.recorder.RecordOutcome(ctx, attemptID, core.AttemptOutcome{
		Status:          outcome.Status,
		ResponseStatus:  http.StatusOK,
		ResponseSummary: outcome.Summary,
		ErrorMessage:    outcome.Error,
		Duration:        duration,
	})

	if outcome.Status == core.StatusFailed {
		// A held claim marks a processed event. This one failed, so the key
		// goes back: a re-delivery dispatches again instead of being deduped
		// against an attempt that accomplished nothing.
		g.releaseClaim(ctx, source, parsed.IdempotencyKey)
	}

	receipt := Receipt{
		AttemptID:  attemptID,
		Status:     outcome.Status,
		HTTPStatus: http.StatusOK,
		Degraded:   decision.Degraded,
		Unhandled:  outcome.Unhandled,
	}
	g.observe(ctx, receipt, startedAt)
	return receipt, nil
}

// dispatch bounds handler execution with the request timeout. A handler
// that overruns still resolves promptly as a failed outcome; the provider
// gets an answer instead of retrying into a stuck worker.
func (g *Gateway) dispatch(ctx context.Context, event core.Event) dispatch.Outcome {
	timeout := g.config.RequestTimeout
	if timeout <= 0 {
		return g.dispatcher.Dispatch(ctx, event)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan dispatch.Outcome, 1)
	go func() {
		done <- g.dispatcher.Dispatch(ctx, event)
	}()
	select {
	case outcome := <-done:
		return outcome
	case <-ctx.Done():
		return dispatch.Outcome{
			Status: core.StatusFailed,
			Error:  fmt.Sprintf("webhookguard: processing timed out after %s", timeout),
		}
	}
}

// reject records an authentication failure and maps it to a generic 401.
// The audit write is best-effort here; an unreachable audit store must not
// turn a forgery into a 5xx that invites retries.
func (g *Gateway) reject(ctx context.Context, delivery Delivery, verdict signature.Result, startedAt time.Time) Receipt {
	status := core.StatusRejected
	summary := "signature verification failed"
	if verdict.Reason == signature.ReasonStaleTimestamp || verdict.Reason == signature.ReasonFutureTimestamp {
		status = core.StatusExpired
		summary = "timestamp outside acceptance window"
	}

	attempt := core.WebhookAttempt{
		Source:             delivery.Source,
		SignaturePresented: headerValue(delivery.Headers, g.verifier.Header),
		SignatureValid:     false,
		ClaimedTimestamp:   verdict.ClaimedTimestamp,
		TimestampValid:     status != core.StatusExpired,
		Status:             status,
		SanitizedHeaders:   delivery.Headers,
		SanitizedBody:      map[string]any{},
		ResponseStatus:     http.StatusUnauthorized,
		ResponseSummary:    summary,
		ErrorMessage:       string(verdict.Reason),
		ProcessingDuration: g.clock().Sub(startedAt),
		CreatedAt:          startedAt,
	}
	attemptID, _ := g.recorder.Record(ctx, attempt)

	g.logRejection(ctx, delivery.Source, verdict.Reason)
	receipt := Receipt{
		AttemptID:  attemptID,
		Status:     status,
		HTTPStatus: http.StatusUnauthorized,
	}
	g.observe(ctx, receipt, startedAt)
	return receipt
}

// DefaultEventParser reads the JSON body and resolves the idempotency key
// from the Webhook-Id header first, then the event id fields providers
// commonly embed. A missing key is legal; duplicate detection is skipped
// for those deliveries.
func DefaultEventParser(delivery Delivery) (ParsedEvent, error) {
	fields := map[string]any{}
	if len(delivery.Body) > 0 {
		if err := json.Unmarshal(delivery.Body, &fields); err != nil {
			return ParsedEvent{}, fmt.Errorf("webhookguard: decode event body: %w", err)
		}
	}

	parsed := ParsedEvent{Fields: fields}
	for _, key := range []string{"type", "event_type", "eventType"} {
		if value := strings.TrimSpace(stringField(fields, key)); value != "" {
			parsed.Type = value
			break
		}
	}
	if value := headerValue(delivery.Headers, "Webhook-Id"); value != "" {
		parsed.IdempotencyKey = value
	} else {
		for _, key := range []string{"id", "event_id", "eventId"} {
			if value := strings.TrimSpace(stringField(fields, key)); value != "" {
				parsed.IdempotencyKey = value
				break
			}
		}
	}
	return parsed, nil
}

func (g *Gateway) observe(ctx context.Context, receipt Receipt, startedAt time.Time) {
	if g.metrics == nil {
		return
	}
	tags := map[string]string{"status": string(receipt.Status)}
	g.metrics.IncCounter(ctx, "webhooks.attempts.total", 1, tags)
	g.metrics.ObserveHistogram(ctx, "webhooks.attempts.duration_ms",
		float64(g.clock().Sub(startedAt).Milliseconds()), tags)
}

// releaseClaim is best-effort. A failed release leaves the key held until
// the retention window lapses; log and continue.
func (g *Gateway) releaseClaim(ctx context.Context, source string, key string) {
	err := g.guard.Release(ctx, source, key)
	if err == nil || g.logger == nil {
		return
	}
	logger := g.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("failed to release idempotency claim",
		"source", source,
		"error", err.Error(),
	)
}

func (g *Gateway) logRejection(ctx context.Context, source string, reason signature.Reason) {
	if g.logger == nil {
		return
	}
	logger := g.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn("rejected inbound webhook",
		"source", source,
		"reason", string(reason),
	)
}

func (g *Gateway) clock() time.Time {
	if g != nil && g.now != nil {
		return g.now().UTC()
	}
	return time.Now().UTC()
}

func gatewayBadInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.WebhookErrorBadInput)
}

func gatewayInternal(message string, cause error) error {
	if cause == nil {
		return goerrors.New(message, goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.WebhookErrorInternal)
	}
	return goerrors.Wrap(cause, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.WebhookErrorInternal)
}

func gatewayAuditUnavailable(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryInternal, "webhookguard: audit store unreachable").
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.WebhookErrorAuditUnavailable)
}

func stringField(fields map[string]any, key string) string {
	if len(fields) == 0 {
		return ""
	}
	if value, ok := fields[key].(string); ok {
		return value
	}
	return ""
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
