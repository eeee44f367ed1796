package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"
)

var testNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func newTestVerifier() Verifier {
	v := NewVerifier()
	v.Now = func() time.Time {
		return testNow
	}
	return v
}

func signBody(t *testing.T, secret string, timestamp time.Time, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	payload := strconv.FormatInt(timestamp.Unix(), 10) + "." + string(body)
	_, _ = mac.Write([]byte(payload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifier_AcceptsCorrectSignature(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{"type":"Transaction.Paid","data":{"paymentId":"pay_1"}}`)
	headers := map[string]string{
		"Webhook-Signature": signBody(t, "s3cr3t", testNow, body),
	}

	result := verifier.Verify(headers, body, "s3cr3t")
	if !result.Valid {
		t.Fatalf("expected valid signature, got reason %q", result.Reason)
	}
	if result.ClaimedTimestamp == nil || !result.ClaimedTimestamp.Equal(testNow.Truncate(time.Second)) {
		t.Fatalf("expected claimed timestamp %v, got %v", testNow, result.ClaimedTimestamp)
	}
}

func TestVerifier_RejectsFlippedBodyByte(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{"type":"Transaction.Paid","data":{"paymentId":"pay_1"}}`)
	headers := map[string]string{
		"Webhook-Signature": signBody(t, "s3cr3t", testNow, body),
	}

	tampered := append([]byte(nil), body...)
	tampered[10] ^= 0x01
	result := verifier.Verify(headers, tampered, "s3cr3t")
	if result.Valid {
		t.Fatalf("expected tampered body to fail verification")
	}
	if result.Reason != ReasonMismatch {
		t.Fatalf("expected mismatch reason, got %q", result.Reason)
	}
}

func TestVerifier_RejectsFlippedSignatureByte(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{"type":"Transaction.Paid"}`)
	header := signBody(t, "s3cr3t", testNow, body)

	// Flip the last hex digit of the digest.
	last := header[len(header)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	headers := map[string]string{
		"Webhook-Signature": header[:len(header)-1] + string(flipped),
	}

	result := verifier.Verify(headers, body, "s3cr3t")
	if result.Valid {
		t.Fatalf("expected tampered signature to fail verification")
	}
	if result.Reason != ReasonMismatch {
		t.Fatalf("expected mismatch reason, got %q", result.Reason)
	}
}

func TestVerifier_RejectsStaleTimestamp(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{"type":"Transaction.Paid"}`)
	stale := testNow.Add(-6 * time.Minute)
	headers := map[string]string{
		"Webhook-Signature": signBody(t, "s3cr3t", stale, body),
	}

	result := verifier.Verify(headers, body, "s3cr3t")
	if result.Valid {
		t.Fatalf("expected stale delivery to be rejected even with a correct digest")
	}
	if result.Reason != ReasonStaleTimestamp {
		t.Fatalf("expected stale reason, got %q", result.Reason)
	}
	if result.ClaimedTimestamp == nil {
		t.Fatalf("expected claimed timestamp to be reported for audit")
	}
}

func TestVerifier_RejectsFutureTimestamp(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{"type":"Transaction.Paid"}`)
	future := testNow.Add(2 * time.Minute)
	headers := map[string]string{
		"Webhook-Signature": signBody(t, "s3cr3t", future, body),
	}

	result := verifier.Verify(headers, body, "s3cr3t")
	if result.Valid {
		t.Fatalf("expected future-dated delivery to be rejected")
	}
	if result.Reason != ReasonFutureTimestamp {
		t.Fatalf("expected future reason, got %q", result.Reason)
	}
}

func TestVerifier_ReportsMissingAndMalformedHeaders(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{}`)

	cases := []struct {
		name   string
		header string
		reason Reason
	}{
		{name: "missing", header: "", reason: ReasonMissingSignature},
		{name: "no fields", header: "nonsense", reason: ReasonMalformedHeader},
		{name: "missing v1", header: "t=1756123200", reason: ReasonMalformedHeader},
		{name: "missing t", header: "v1=abcdef", reason: ReasonMalformedHeader},
		{name: "bad timestamp", header: "t=soon,v1=abcdef", reason: ReasonMalformedHeader},
		{name: "bad hex", header: "t=1756123200,v1=zzzz", reason: ReasonMalformedHeader},
	}
	for _, tc := range cases {
		headers := map[string]string{}
		if tc.header != "" {
			headers["Webhook-Signature"] = tc.header
		}
		result := verifier.Verify(headers, body, "s3cr3t")
		if result.Valid {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		if result.Reason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %q", tc.name, tc.reason, result.Reason)
		}
	}
}

func TestVerifier_AcceptsAnySecretDuringRotation(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{"type":"Transaction.Refunded"}`)
	headers := map[string]string{
		"Webhook-Signature": signBody(t, "previous-secret", testNow, body),
	}

	result := verifier.Verify(headers, body, "current-secret", "previous-secret")
	if !result.Valid {
		t.Fatalf("expected previous rotation secret to verify, got reason %q", result.Reason)
	}

	result = verifier.Verify(headers, body, "current-secret")
	if result.Valid {
		t.Fatalf("expected verification to fail once the old secret is retired")
	}
}

func TestVerifier_HeaderLookupIsCaseInsensitive(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{"type":"Transaction.Paid"}`)
	headers := map[string]string{
		"webhook-signature": signBody(t, "s3cr3t", testNow, body),
	}

	if result := verifier.Verify(headers, body, "s3cr3t"); !result.Valid {
		t.Fatalf("expected case-insensitive header match, got reason %q", result.Reason)
	}
}
