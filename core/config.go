package core

import (
	"fmt"
	"strings"
	"time"
)

type SignatureConfig struct {
	Header     string        `koanf:"header" mapstructure:"header"`
	StaleAfter time.Duration `koanf:"stale_after" mapstructure:"stale_after"`
	FutureSkew time.Duration `koanf:"future_skew" mapstructure:"future_skew"`
}

type IdempotencyConfig struct {
	RetentionWindow time.Duration `koanf:"retention_window" mapstructure:"retention_window"`
	FailClosed      bool          `koanf:"fail_closed" mapstructure:"fail_closed"`
}

type Config struct {
	ServiceName    string            `koanf:"service_name" mapstructure:"service_name"`
	RequestTimeout time.Duration     `koanf:"request_timeout" mapstructure:"request_timeout"`
	MaxBodyBytes   int64             `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	Signature      SignatureConfig   `koanf:"signature" mapstructure:"signature"`
	Idempotency    IdempotencyConfig `koanf:"idempotency" mapstructure:"idempotency"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "webhook-guard",
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1 << 20,
		Signature: SignatureConfig{
			Header:     "Webhook-Signature",
			StaleAfter: 5 * time.Minute,
			FutureSkew: time.Minute,
		},
		Idempotency: IdempotencyConfig{
			RetentionWindow: 24 * time.Hour,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("core: request_timeout must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("core: max_body_bytes must not be negative")
	}
	if c.Signature.StaleAfter < 0 || c.Signature.FutureSkew < 0 {
		return fmt.Errorf("core: signature windows must not be negative")
	}
	if c.Idempotency.RetentionWindow < 0 {
		return fmt.Errorf("core: idempotency retention_window must not be negative")
	}
	return nil
}
