package security

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goliatone/go-webhook-guard/core"
)

// DefaultEnvPrefix is the environment variable prefix secrets are read
// under, e.g. WEBHOOK_SECRET_PAYMENT.
const DefaultEnvPrefix = "WEBHOOK_SECRET_"

// EnvSecretSource resolves signing secrets from the environment. The value
// may hold several comma-separated secrets so rotations can keep the
// retiring key accepted while providers re-sign with the new one.
type EnvSecretSource struct {
	Prefix string
	// Lookup defaults to os.LookupEnv; tests swap it out.
	Lookup func(key string) (string, bool)
}

func NewEnvSecretSource() *EnvSecretSource {
	return &EnvSecretSource{Prefix: DefaultEnvPrefix}
}

func (s *EnvSecretSource) SigningSecrets(_ context.Context, source string) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("security: secret source is nil")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("security: source is required")
	}

	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := s.Prefix
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultEnvPrefix
	}

	key := prefix + envKeySegment(source)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("security: environment variable %s is not set", key)
	}

	var secrets []string
	for _, candidate := range strings.Split(raw, ",") {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			secrets = append(secrets, candidate)
		}
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("security: environment variable %s holds no usable secret", key)
	}
	return secrets, nil
}

func envKeySegment(source string) string {
	segment := strings.ToUpper(strings.TrimSpace(source))
	segment = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(segment)
	return segment
}

var _ core.SecretSource = (*EnvSecretSource)(nil)
