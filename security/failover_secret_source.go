package security

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-webhook-guard/core"
)

type SecretSourceFailurePolicy string

const (
	SecretSourceFailurePolicyStrict   SecretSourceFailurePolicy = "strict_fail"
	SecretSourceFailurePolicyFallback SecretSourceFailurePolicy = "fallback_allowed"
)

// SecretSourceDiagnostic reports a lookup that needed the fallback path.
type SecretSourceDiagnostic struct {
	OccurredAt time.Time
	Source     string
	Policy     SecretSourceFailurePolicy
	Outcome    string
	Primary    string
	Fallback   string
	Error      string
}

type SecretSourceDiagnosticHook func(event SecretSourceDiagnostic)

type FailoverOption func(*FailoverSecretSource)

// FailoverSecretSource consults a primary source and, under the fallback
// policy, a secondary one when the primary cannot serve a lookup. A typical
// wiring is a remote secret manager backed by a local static snapshot so a
// manager outage does not take payment confirmation down with it.
type FailoverSecretSource struct {
	primary        core.SecretSource
	fallback       core.SecretSource
	policy         SecretSourceFailurePolicy
	diagnosticHook SecretSourceDiagnosticHook
	now            func() time.Time
}

func NewFailoverSecretSource(primary core.SecretSource, opts ...FailoverOption) (*FailoverSecretSource, error) {
	if primary == nil {
		return nil, fmt.Errorf("security: primary secret source is required")
	}
	source := &FailoverSecretSource{
		primary: primary,
		policy:  SecretSourceFailurePolicyStrict,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(source)
	}
	source.policy = normalizeFailurePolicy(source.policy)
	if source.policy == SecretSourceFailurePolicyFallback && source.fallback == nil {
		return nil, fmt.Errorf("security: fallback policy requires a configured fallback secret source")
	}
	if source.now == nil {
		source.now = func() time.Time { return time.Now().UTC() }
	}
	return source, nil
}

func WithFallbackSecretSource(fallback core.SecretSource) FailoverOption {
	return func(f *FailoverSecretSource) {
		if f == nil {
			return
		}
		f.fallback = fallback
	}
}

func WithSecretSourceFailurePolicy(policy SecretSourceFailurePolicy) FailoverOption {
	return func(f *FailoverSecretSource) {
		if f == nil {
			return
		}
		f.policy = normalizeFailurePolicy(policy)
	}
}

func WithSecretSourceDiagnostics(hook SecretSourceDiagnosticHook) FailoverOption {
	return func(f *FailoverSecretSource) {
		if f == nil {
			return
		}
		f.diagnosticHook = hook
	}
}

func WithFailoverClock(now func() time.Time) FailoverOption {
	return func(f *FailoverSecretSource) {
		if f == nil {
			return
		}
		f.now = now
	}
}

func (f *FailoverSecretSource) SigningSecrets(ctx context.Context, source string) ([]string, error) {
	if f == nil {
		return nil, fmt.Errorf("security: secret source is nil")
	}
	secrets, err := f.primary.SigningSecrets(ctx, source)
	if err == nil && len(secrets) > 0 {
		return secrets, nil
	}
	if err == nil {
		err = fmt.Errorf("security: primary returned no secrets for source %q", source)
	}
	f.emit(source, "primary_failed", err)
	if f.policy == SecretSourceFailurePolicyStrict || f.fallback == nil {
		return nil, fmt.Errorf("security: primary lookup failed with %s policy: %w", f.policy, err)
	}
	fallbackSecrets, fallbackErr := f.fallback.SigningSecrets(ctx, source)
	if fallbackErr != nil {
		f.emit(source, "fallback_failed", fallbackErr)
		return nil, fmt.Errorf("security: primary lookup failed: %v; fallback lookup failed: %w", err, fallbackErr)
	}
	f.emit(source, "fallback_succeeded", err)
	return fallbackSecrets, nil
}

func (f *FailoverSecretSource) emit(source string, outcome string, err error) {
	if f == nil || f.diagnosticHook == nil {
		return
	}
	now := f.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	f.diagnosticHook(SecretSourceDiagnostic{
		OccurredAt: now().UTC(),
		Source:     source,
		Policy:     f.policy,
		Outcome:    outcome,
		Primary:    describeSecretSource(f.primary),
		Fallback:   describeSecretSource(f.fallback),
		Error:      msg,
	})
}

func normalizeFailurePolicy(policy SecretSourceFailurePolicy) SecretSourceFailurePolicy {
	normalized := SecretSourceFailurePolicy(strings.ToLower(strings.TrimSpace(string(policy))))
	switch normalized {
	case SecretSourceFailurePolicyFallback:
		return SecretSourceFailurePolicyFallback
	default:
		return SecretSourceFailurePolicyStrict
	}
}

func describeSecretSource(source core.SecretSource) string {
	if source == nil {
		return ""
	}
	return reflect.TypeOf(source).String()
}

var _ core.SecretSource = (*FailoverSecretSource)(nil)
