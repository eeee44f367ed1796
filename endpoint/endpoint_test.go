package endpoint

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	webhookguard "github.com/goliatone/go-webhook-guard"
	"github.com/goliatone/go-webhook-guard/core"
	"github.com/goliatone/go-webhook-guard/security"
)

var endpointTestNow = time.Date(2026, time.August, 25, 12, 0, 0, 0, time.UTC)

type stubSink struct {
	appended []core.WebhookAttempt
	outcomes map[string]core.AttemptOutcome
}

func newStubSink() *stubSink {
	return &stubSink{outcomes: map[string]core.AttemptOutcome{}}
}

func (s *stubSink) Append(_ context.Context, attempt core.WebhookAttempt) (string, error) {
	s.appended = append(s.appended, attempt)
	return fmt.Sprintf("attempt-%d", len(s.appended)), nil
}

func (s *stubSink) RecordOutcome(_ context.Context, attemptID string, outcome core.AttemptOutcome) error {
	s.outcomes[attemptID] = outcome
	return nil
}

func newTestServer(t *testing.T, sink core.AuditSink) (*httptest.Server, *webhookguard.Gateway) {
	t.Helper()
	gateway, err := webhookguard.New(
		webhookguard.WithSecretSource(security.NewStaticSecretSource(map[string][]string{"payment": {"s3cr3t"}})),
		webhookguard.WithAuditSink(sink),
		webhookguard.WithNow(func() time.Time { return endpointTestNow }),
	)
	if err != nil {
		t.Fatalf("build gateway: %v", err)
	}
	mux := http.NewServeMux()
	Mount(mux, gateway)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, gateway
}

func signHeader(secret string, at time.Time, body []byte) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postWebhook(t *testing.T, server *httptest.Server, source string, signature string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, server.URL+"/webhooks/"+source, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Webhook-Signature", signature)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	payload := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestHandler_AcceptsSignedDelivery(t *testing.T) {
	sink := newStubSink()
	server, gateway := newTestServer(t, sink)

	processed := 0
	if err := gateway.Dispatcher().RegisterFunc("Transaction.Paid", func(context.Context, core.Event) (core.HandlerResult, error) {
		processed++
		return core.HandlerResult{Summary: "booking confirmed"}, nil
	}); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	body := []byte(`{"id":"evt_1","type":"Transaction.Paid","data":{"paymentId":"pay_1"}}`)
	resp := postWebhook(t, server, "payment", signHeader("s3cr3t", endpointTestNow, body), body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["received"] != true {
		t.Fatalf("expected acknowledgment body, got %v", payload)
	}
	if processed != 1 {
		t.Fatalf("expected handler to run once, got %d", processed)
	}
}

func TestHandler_DuplicateDeliveryIsIndistinguishable(t *testing.T) {
	sink := newStubSink()
	server, gateway := newTestServer(t, sink)

	processed := 0
	if err := gateway.Dispatcher().RegisterFunc("Transaction.Paid", func(context.Context, core.Event) (core.HandlerResult, error) {
		processed++
		return core.HandlerResult{}, nil
	}); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	body := []byte(`{"id":"evt_1","type":"Transaction.Paid"}`)
	signature := signHeader("s3cr3t", endpointTestNow, body)

	first := postWebhook(t, server, "payment", signature, body)
	second := postWebhook(t, server, "payment", signature, body)
	if first.StatusCode != http.StatusOK || second.StatusCode != http.StatusOK {
		t.Fatalf("expected both deliveries 200, got %d and %d", first.StatusCode, second.StatusCode)
	}

	firstBody := decodeBody(t, first)
	secondBody := decodeBody(t, second)
	if fmt.Sprint(firstBody) != fmt.Sprint(secondBody) {
		t.Fatalf("duplicate response must match original: %v vs %v", firstBody, secondBody)
	}
	if processed != 1 {
		t.Fatalf("expected exactly one processing run, got %d", processed)
	}
	if sink.appended[1].Status != core.StatusDuplicate {
		t.Fatalf("expected duplicate attempt recorded, got %+v", sink.appended[1])
	}
}

func TestHandler_RejectionsShareOneGenericBody(t *testing.T) {
	sink := newStubSink()
	server, _ := newTestServer(t, sink)

	body := []byte(`{"id":"evt_1","type":"Transaction.Paid"}`)
	cases := map[string]string{
		"missing signature": "",
		"forged signature":  signHeader("wrong-secret", endpointTestNow, body),
		"stale timestamp":   signHeader("s3cr3t", endpointTestNow.Add(-10*time.Minute), body),
		"malformed header":  "v1=not-a-real-signature",
	}
	var bodies []string
	for name, signature := range cases {
		resp := postWebhook(t, server, "payment", signature, body)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, resp.StatusCode)
		}
		bodies = append(bodies, fmt.Sprint(decodeBody(t, resp)))
	}
	for _, responseBody := range bodies[1:] {
		if responseBody != bodies[0] {
			t.Fatalf("rejection bodies must be indistinguishable: %v", bodies)
		}
	}
	if strings.Contains(bodies[0], "stale") || strings.Contains(bodies[0], "mismatch") {
		t.Fatalf("rejection body leaks the failure reason: %v", bodies[0])
	}
}

func TestHandler_HandlerFailureResolves200(t *testing.T) {
	sink := newStubSink()
	server, gateway := newTestServer(t, sink)

	if err := gateway.Dispatcher().RegisterFunc("Transaction.Paid", func(context.Context, core.Event) (core.HandlerResult, error) {
		return core.HandlerResult{}, fmt.Errorf("downstream ledger refused")
	}); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	body := []byte(`{"id":"evt_1","type":"Transaction.Paid"}`)
	resp := postWebhook(t, server, "payment", signHeader("s3cr3t", endpointTestNow, body), body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handler failure must still resolve 200, got %d", resp.StatusCode)
	}
	if len(sink.appended) != 1 {
		t.Fatalf("expected attempt recorded, got %d", len(sink.appended))
	}
	outcome := sink.outcomes["attempt-1"]
	if outcome.Status != core.StatusFailed {
		t.Fatalf("expected failed outcome recorded, got %+v", outcome)
	}
}

func TestHandler_UnknownSourceIsServerFault(t *testing.T) {
	sink := newStubSink()
	server, _ := newTestServer(t, sink)

	body := []byte(`{"id":"evt_1","type":"Transaction.Paid"}`)
	resp := postWebhook(t, server, "unknown-provider", signHeader("s3cr3t", endpointTestNow, body), body)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unconfigured source, got %d", resp.StatusCode)
	}
}

func TestHandler_OversizedBodyRejected(t *testing.T) {
	sink := newStubSink()
	gateway, err := webhookguard.New(
		webhookguard.WithSecretSource(security.NewStaticSecretSource(map[string][]string{"payment": {"s3cr3t"}})),
		webhookguard.WithAuditSink(sink),
	)
	if err != nil {
		t.Fatalf("build gateway: %v", err)
	}
	handler := NewHandler(gateway, "payment")
	handler.MaxBodyBytes = 64

	body := bytes.Repeat([]byte("a"), 128)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", recorder.Code)
	}
}

func TestHandler_RejectsNonPost(t *testing.T) {
	sink := newStubSink()
	gateway, err := webhookguard.New(
		webhookguard.WithSecretSource(security.NewStaticSecretSource(map[string][]string{"payment": {"s3cr3t"}})),
		webhookguard.WithAuditSink(sink),
	)
	if err != nil {
		t.Fatalf("build gateway: %v", err)
	}
	handler := NewHandler(gateway, "payment")

	req := httptest.NewRequest(http.MethodGet, "/webhooks/payment", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", recorder.Code)
	}
}
