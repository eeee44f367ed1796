// Package signature verifies the authenticity headers payment and messaging
// providers attach to webhook deliveries. The verifier is a pure function
// over (headers, raw body, secrets, now): no I/O, no ambient state, so every
// trust decision is reproducible in tests.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHeader     = "Webhook-Signature"
	DefaultStaleAfter = 5 * time.Minute
	DefaultFutureSkew = time.Minute
)

// Reason is the coarse category reported for a rejected delivery. Reasons
// deliberately carry no detail about the expected signature so the endpoint
// cannot be used as a forgery oracle.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMissingSignature Reason = "missing_signature"
	ReasonMalformedHeader  Reason = "malformed_header"
	ReasonStaleTimestamp   Reason = "stale_timestamp"
	ReasonFutureTimestamp  Reason = "future_timestamp"
	ReasonMismatch         Reason = "signature_mismatch"
)

// Result reports the trust decision for one delivery. ClaimedTimestamp is
// populated whenever the header parsed, including for rejected deliveries,
// so the audit trail can record what the sender claimed.
type Result struct {
	Valid            bool
	Reason           Reason
	ClaimedTimestamp *time.Time
}

// Verifier checks a signature header of the form
//
//	t=<unix-seconds>,v1=<hex-hmac-sha256>
//
// where the digest covers "<t>.<raw-body-bytes>". The raw bytes from the
// wire must be used; re-serialized JSON will not verify.
type Verifier struct {
	Header     string
	StaleAfter time.Duration
	FutureSkew time.Duration
	Now        func() time.Time
}

func NewVerifier() Verifier {
	return Verifier{
		Header:     DefaultHeader,
		StaleAfter: DefaultStaleAfter,
		FutureSkew: DefaultFutureSkew,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Verify checks body against the signature header using the supplied
// secrets. Any secret in the set may match, which keeps in-flight deliveries
// valid across a secret rotation.
func (v Verifier) Verify(headers map[string]string, body []byte, secrets ...string) Result {
	header := strings.TrimSpace(headerValue(headers, v.headerName()))
	if header == "" {
		return Result{Reason: ReasonMissingSignature}
	}

	parsed, ok := parseSignatureHeader(header)
	if !ok {
		return Result{Reason: ReasonMalformedHeader}
	}
	claimed := time.Unix(parsed.timestamp, 0).UTC()

	now := v.now()
	if now.Sub(claimed) > v.staleAfter() {
		return Result{Reason: ReasonStaleTimestamp, ClaimedTimestamp: &claimed}
	}
	if claimed.Sub(now) > v.futureSkew() {
		return Result{Reason: ReasonFutureTimestamp, ClaimedTimestamp: &claimed}
	}

	signedPayload := strconv.FormatInt(parsed.timestamp, 10) + "."
	for _, secret := range secrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		mac := hmac.New(sha256.New, []byte(secret))
		_, _ = mac.Write([]byte(signedPayload))
		_, _ = mac.Write(body)
		expected := mac.Sum(nil)
		for _, candidate := range parsed.signatures {
			if subtle.ConstantTimeCompare(candidate, expected) == 1 {
				return Result{Valid: true, ClaimedTimestamp: &claimed}
			}
		}
	}
	return Result{Reason: ReasonMismatch, ClaimedTimestamp: &claimed}
}

type parsedHeader struct {
	timestamp  int64
	signatures [][]byte
}

// parseSignatureHeader tolerates multiple v1 entries, which providers emit
// while they roll their own signing secrets.
func parseSignatureHeader(header string) (parsedHeader, bool) {
	var out parsedHeader
	sawTimestamp := false
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return parsedHeader{}, false
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil || sawTimestamp {
				return parsedHeader{}, false
			}
			out.timestamp = ts
			sawTimestamp = true
		case "v1":
			decoded, err := hex.DecodeString(strings.ToLower(value))
			if err != nil || len(decoded) == 0 {
				return parsedHeader{}, false
			}
			out.signatures = append(out.signatures, decoded)
		default:
			// Unknown schemes are skipped, not rejected; providers add new
			// versions without renegotiating with every consumer.
		}
	}
	if !sawTimestamp || len(out.signatures) == 0 {
		return parsedHeader{}, false
	}
	return out, true
}

func (v Verifier) headerName() string {
	if name := strings.TrimSpace(v.Header); name != "" {
		return name
	}
	return DefaultHeader
}

func (v Verifier) staleAfter() time.Duration {
	if v.StaleAfter > 0 {
		return v.StaleAfter
	}
	return DefaultStaleAfter
}

func (v Verifier) futureSkew() time.Duration {
	if v.FutureSkew > 0 {
		return v.FutureSkew
	}
	return DefaultFutureSkew
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
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
