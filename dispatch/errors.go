package dispatch

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-webhook-guard/core"
)

func dispatchError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func dispatchBadInput(message string, metadata map[string]any) error {
	return dispatchError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.WebhookErrorBadInput,
		metadata,
	)
}

func dispatchConflict(message string, metadata map[string]any) error {
	return dispatchError(
		message,
		goerrors.CategoryConflict,
		http.StatusConflict,
		core.WebhookErrorConflict,
		metadata,
	)
}

func dispatchInternal(message string, metadata map[string]any) error {
	return dispatchError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.WebhookErrorInternal,
		metadata,
	)
}
