package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nimburion/listquery/pkg/i18n"
	"github.com/nimburion/listquery/pkg/middleware"
)

// AppError is the single application error contract shared across layers.
type AppError = i18n.AppError

const (
	codeInternal     = "internal.error"
	codeTimeout      = "request.timeout"
	codeTooLarge     = "request.too_large"
	unexpectedFailed = "an unexpected error occurred"
)

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Status    string                 `json:"status"`
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// MapError maps an error to its HTTP status and failure envelope.
// AppErrors keep their code and message; for store failures the message is
// the store's own. Anything else is reported as an opaque 500.
func MapError(ctx context.Context, err error) (int, ErrorResponse) {
	resp := ErrorResponse{Status: StatusError, RequestID: requestID(ctx)}

	if errors.Is(err, context.DeadlineExceeded) {
		err = NewTimeoutError()
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		resp.Error = unexpectedFailed
		resp.Code = codeInternal
		return http.StatusInternalServerError, resp
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = inferStatusFromCode(appErr.Code)
	}

	resp.Code = appErr.Code
	resp.Details = appErr.Details
	resp.Error = translate(ctx, appErr)
	if resp.Error == "" {
		resp.Error = unexpectedFailed
	}
	return status, resp
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(middleware.RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// NewValidationError creates a 400 error with structured details.
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return i18n.NewError("validation.failed", nil, nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusBadRequest).
		WithDetails(details)
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message string) *AppError {
	return i18n.NewError("resource.not_found", nil, nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusNotFound)
}

// NewConflictError creates a 409 error.
func NewConflictError(message string, details map[string]interface{}) *AppError {
	return i18n.NewError("resource.conflict", nil, nil).
		WithMessage(message).
		WithHTTPStatus(http.StatusConflict).
		WithDetails(details)
}

// NewRouteNotFoundError creates the 404 for requests that match no route.
func NewRouteNotFoundError() *AppError {
	return i18n.NewError("route.not_found", nil, nil).
		WithMessage("route not found").
		WithHTTPStatus(http.StatusNotFound)
}

// NewInternalError creates a 500 error whose message is safe to show.
func NewInternalError(message string, cause error) *AppError {
	return i18n.NewError(codeInternal, nil, cause).
		WithMessage(message).
		WithHTTPStatus(http.StatusInternalServerError)
}

// NewTimeoutError creates a 504 error for requests that ran past their deadline.
func NewTimeoutError() *AppError {
	return i18n.NewError(codeTimeout, nil, context.DeadlineExceeded).
		WithMessage("request timeout").
		WithHTTPStatus(http.StatusGatewayTimeout)
}

// NewPayloadTooLargeError creates a 413 error carrying the configured limit.
func NewPayloadTooLargeError(maxBytes int64) *AppError {
	return i18n.NewError(codeTooLarge, nil, nil).
		WithMessage(fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxBytes)).
		WithHTTPStatus(http.StatusRequestEntityTooLarge).
		WithDetails(map[string]interface{}{"max_size": maxBytes})
}

// translate resolves the localized message for appErr, falling back to its
// fallback message when the catalog has no entry.
func translate(ctx context.Context, appErr *AppError) string {
	if appErr.Code == "" {
		return appErr.FallbackMessage
	}
	args := make(map[string]interface{}, len(appErr.Params)+len(appErr.Details))
	for k, v := range appErr.Details {
		args[k] = v
	}
	for k, v := range appErr.Params {
		args[k] = v
	}
	translated := i18n.TranslatorFromContext(ctx).T(appErr.Code, args)
	if translated == "" || translated == appErr.Code {
		return appErr.FallbackMessage
	}
	return translated
}

func inferStatusFromCode(code string) int {
	lowerCode := strings.ToLower(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(lowerCode, "validation."):
		return http.StatusBadRequest
	case strings.Contains(lowerCode, "not_found"):
		return http.StatusNotFound
	case strings.Contains(lowerCode, "conflict"):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
