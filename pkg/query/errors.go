package query

import (
	"errors"
	"net/http"

	"github.com/nimburion/listquery/pkg/i18n"
)

var (
	// ErrValidation marks list query input that was rejected before any store call.
	ErrValidation = errors.New("invalid list query")
	// ErrStore marks a failed count or fetch against the document store.
	ErrStore = errors.New("list query store failure")
)

// NewValidationError builds a 400 AppError under the validation.list_query namespace.
func NewValidationError(code, message string, details map[string]interface{}) *i18n.AppError {
	return i18n.NewError("validation.list_query."+code, nil, ErrValidation).
		WithMessage(message).
		WithHTTPStatus(http.StatusBadRequest).
		WithDetails(details)
}

// NewStoreError wraps a store failure. The fallback message is the store's own message.
func NewStoreError(operation string, cause error) *i18n.AppError {
	return i18n.NewError("store.list_query_failed", i18n.Params{"operation": operation}, errors.Join(ErrStore, cause)).
		WithMessage(cause.Error()).
		WithHTTPStatus(http.StatusInternalServerError)
}

// IsValidation reports whether err was produced by input validation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
