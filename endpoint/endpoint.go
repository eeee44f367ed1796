// Package endpoint exposes the webhook gateway over net/http. The handler
// is deliberately thin: it bounds and captures the raw body, flattens
// headers, and maps the pipeline's receipt onto the external response
// contract. All trust decisions live in the gateway.
package endpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	webhookguard "github.com/goliatone/go-webhook-guard"
	"github.com/goliatone/go-webhook-guard/core"
)

// DefaultMaxBodyBytes bounds inbound payloads at 1 MiB.
const DefaultMaxBodyBytes int64 = 1 << 20

// Processor is the slice of the gateway the handler needs.
type Processor interface {
	Process(ctx context.Context, delivery webhookguard.Delivery) (webhookguard.Receipt, error)
}

// SourceResolver derives the source identifier from the request. The
// default handler uses the {source} path value.
type SourceResolver func(r *http.Request) string

// Handler adapts the gateway to an http.Handler for one or more sources.
type Handler struct {
	Processor     Processor
	Source        string
	ResolveSource SourceResolver
	MaxBodyBytes  int64
	Logger        core.Logger
}

var _ http.Handler = (*Handler)(nil)

// NewHandler binds the processor to a fixed source.
func NewHandler(processor Processor, source string) *Handler {
	return &Handler{
		Processor:    processor,
		Source:       strings.TrimSpace(source),
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Mount registers the handler on a mux under POST /webhooks/{source}.
func Mount(mux *http.ServeMux, processor Processor) *Handler {
	handler := &Handler{
		Processor: processor,
		ResolveSource: func(r *http.Request) string {
			return r.PathValue("source")
		},
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
	mux.Handle("POST /webhooks/{source}", handler)
	return handler
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Processor == nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	source := strings.TrimSpace(h.Source)
	if h.ResolveSource != nil {
		if resolved := strings.TrimSpace(h.ResolveSource(r)); resolved != "" {
			source = resolved
		}
	}
	if source == "" {
		writeError(w, http.StatusNotFound, "unknown_source")
		return
	}

	body, err := h.readBody(r)
	if err != nil {
		// The signature covers the exact raw bytes; a partial read is
		// useless, so the provider must retry.
		h.logFailure(r.Context(), source, err)
		status := http.StatusInternalServerError
		code := "internal_error"
		if isTooLarge(err) {
			status = http.StatusRequestEntityTooLarge
			code = "payload_too_large"
		}
		writeError(w, status, code)
		return
	}

	receipt, err := h.Processor.Process(r.Context(), webhookguard.Delivery{
		Source:  source,
		Headers: flattenHeaders(r.Header),
		Body:    body,
	})
	if err != nil {
		h.logFailure(r.Context(), source, err)
		writeError(w, statusFor(err), "internal_error")
		return
	}

	switch receipt.HTTPStatus {
	case http.StatusUnauthorized:
		// One generic body for every authentication failure. The reason
		// lives in the audit trail, not in the response.
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		// Processed, duplicate, and failed deliveries share one shape so
		// callers cannot distinguish them and retry storms stay suppressed.
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
	}
}

func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("endpoint: read request body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func (h *Handler) logFailure(ctx context.Context, source string, cause error) {
	if h == nil || h.Logger == nil {
		return
	}
	logger := h.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Error("webhook endpoint failure",
		"source", source,
		"error", cause.Error(),
	)
}

var errBodyTooLarge = errors.New("endpoint: request body exceeds limit")

func isTooLarge(err error) bool {
	return errors.Is(err, errBodyTooLarge)
}

func statusFor(err error) int {
	mapped := core.MapError(err)
	if mapped == nil || mapped.Code < http.StatusBadRequest {
		return http.StatusInternalServerError
	}
	return mapped.Code
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"error": code})
}
