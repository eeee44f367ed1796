package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	WebhookErrorBadInput         = "WEBHOOK_BAD_INPUT"
	WebhookErrorUnauthorized     = "WEBHOOK_SIGNATURE_REJECTED"
	WebhookErrorExpired          = "WEBHOOK_TIMESTAMP_EXPIRED"
	WebhookErrorSourceUnknown    = "WEBHOOK_SOURCE_UNKNOWN"
	WebhookErrorHandlerFailed    = "WEBHOOK_HANDLER_FAILED"
	WebhookErrorStoreDegraded    = "WEBHOOK_IDEMPOTENCY_DEGRADED"
	WebhookErrorAuditUnavailable = "WEBHOOK_AUDIT_UNAVAILABLE"
	WebhookErrorConflict         = "WEBHOOK_CONFLICT"
	WebhookErrorNotFound         = "WEBHOOK_NOT_FOUND"
	WebhookErrorInternal         = "WEBHOOK_INTERNAL_ERROR"
)

func webhookErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureWebhookErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newWebhookError(err.Error(), goerrors.CategoryAuth, WebhookErrorUnauthorized)
	case strings.Contains(msg, "timestamp"):
		return newWebhookError(err.Error(), goerrors.CategoryAuth, WebhookErrorExpired)
	case strings.Contains(msg, "source") && strings.Contains(msg, "not registered"):
		return newWebhookError(err.Error(), goerrors.CategoryNotFound, WebhookErrorSourceUnknown)
	case strings.Contains(msg, "handler"):
		return newWebhookError(err.Error(), goerrors.CategoryOperation, WebhookErrorHandlerFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return newWebhookError(err.Error(), goerrors.CategoryBadInput, WebhookErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureWebhookErrorEnvelope(mapped)
}

func newWebhookError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureWebhookErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureWebhookErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err = err.WithTextCode(WebhookErrorInternal)
	}
	if err.Code == 0 {
		err = err.WithCode(statusForCategory(err.Category))
	}
	return err
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// MapError promotes any error into the module's enveloped error shape.
func MapError(err error) *goerrors.Error {
	return webhookErrorMapper(err)
}
