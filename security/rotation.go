package security

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-webhook-guard/core"
)

// KeyRotationWindow gates when a secret version may verify signatures.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

// RotatingSecret is one secret version with its acceptance window. A zero
// window never expires.
type RotatingSecret struct {
	Secret string
	Window KeyRotationWindow
}

// RotatingSecretSource serves the secret versions whose windows cover the
// current instant. Old versions fall out automatically once their NotAfter
// passes; the gateway keeps verifying against everything still inside a
// window.
type RotatingSecretSource struct {
	Now func() time.Time

	mu      sync.RWMutex
	entries map[string][]RotatingSecret
}

func NewRotatingSecretSource() *RotatingSecretSource {
	return &RotatingSecretSource{
		Now:     func() time.Time { return time.Now().UTC() },
		entries: map[string][]RotatingSecret{},
	}
}

// Rotate appends a secret version for the source. Overlapping windows are
// expected during a rotation handoff.
func (s *RotatingSecretSource) Rotate(source string, secret RotatingSecret) error {
	if s == nil {
		return fmt.Errorf("security: secret source is nil")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return fmt.Errorf("security: source is required")
	}
	if strings.TrimSpace(secret.Secret) == "" {
		return fmt.Errorf("security: secret is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = map[string][]RotatingSecret{}
	}
	s.entries[source] = append(s.entries[source], secret)
	return nil
}

func (s *RotatingSecretSource) SigningSecrets(_ context.Context, source string) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("security: secret source is nil")
	}
	source = strings.TrimSpace(source)

	s.mu.RLock()
	entries := s.entries[source]
	s.mu.RUnlock()
	if len(entries) == 0 {
		return nil, fmt.Errorf("security: source %q is not registered", source)
	}

	at := s.now()
	var secrets []string
	for _, entry := range entries {
		if entry.Window.Allows(at) {
			secrets = append(secrets, entry.Secret)
		}
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("security: no active secret version for source %q", source)
	}
	return secrets, nil
}

func (s *RotatingSecretSource) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.SecretSource = (*RotatingSecretSource)(nil)
