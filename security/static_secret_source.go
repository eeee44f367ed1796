// Package security holds the signing-secret sources the gateway verifies
// against. Secrets are injected, never read from payloads or persisted by
// this module.
package security

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-webhook-guard/core"
)

// StaticSecretSource serves secrets from an in-memory map, keyed by source.
// Each source carries its candidate secrets in preference order so rotation
// can overlap old and new keys.
type StaticSecretSource struct {
	mu      sync.RWMutex
	secrets map[string][]string
}

func NewStaticSecretSource(secrets map[string][]string) *StaticSecretSource {
	source := &StaticSecretSource{secrets: map[string][]string{}}
	for name, candidates := range secrets {
		source.Set(name, candidates...)
	}
	return source
}

// Set replaces the candidate secrets for a source.
func (s *StaticSecretSource) Set(source string, candidates ...string) {
	if s == nil {
		return
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return
	}
	cleaned := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			cleaned = append(cleaned, candidate)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secrets == nil {
		s.secrets = map[string][]string{}
	}
	if len(cleaned) == 0 {
		delete(s.secrets, source)
		return
	}
	s.secrets[source] = cleaned
}

func (s *StaticSecretSource) SigningSecrets(_ context.Context, source string) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("security: secret source is nil")
	}
	source = strings.TrimSpace(source)
	s.mu.RLock()
	candidates := s.secrets[source]
	s.mu.RUnlock()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("security: source %q is not registered", source)
	}
	out := make([]string, len(candidates))
	copy(out, candidates)
	return out, nil
}

var _ core.SecretSource = (*StaticSecretSource)(nil)
