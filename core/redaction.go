package core

import "strings"

const RedactedValue = "[REDACTED]"

// RedactHeaders returns a copy of headers safe for the audit trail. The match
// is substring-based on the canonicalized key so provider-prefixed variants
// (X-Api-Key, Stripe-Signature) are caught without per-provider lists.
func RedactHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	target := make(map[string]string, len(headers))
	for key, value := range headers {
		if shouldRedactHeader(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = value
	}
	return target
}

// RedactSensitiveMap redacts body fields at any nesting depth. Keys that only
// carry traceability identifiers are exempt so dedupe and forensics keep
// working on the stored record.
func RedactSensitiveMap(body map[string]any) map[string]any {
	if len(body) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(body)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

func shouldRedactHeader(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	sensitiveTokens := []string{
		"authorization",
		"cookie",
		"api-key",
		"apikey",
		"api_key",
		"signature",
		"token",
		"secret",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	sensitiveTokens := []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"access_key",
		"credential",
		"signature",
		"card_number",
		"cardnumber",
		"cvv",
		"cvc",
	}
	for _, token := range sensitiveTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "source",
		"event_type",
		"idempotency_key",
		"payment_id",
		"booking_id",
		"attempt_id",
		"trace_id",
		"request_id":
		return true
	default:
		return false
	}
}
