// Package errors provides the error taxonomy for the MEIKon API.
// Service-layer code returns *AppError so handlers can render a stable
// code and message without leaking internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target carries the same code, so a wrapped copy of a
// sentinel still matches the sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WrapWithMessage combines WithMessage and Wrap.
func WrapWithMessage(sentinel *AppError, message string, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized     = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidSignature = &AppError{Code: "INVALID_SIGNATURE", Message: "Webhook signature verification failed", StatusCode: http.StatusUnauthorized}
	ErrForbidden        = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Transaction and inventory errors.
var (
	ErrTransactionNotFound = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrProductNotFound     = &AppError{Code: "PRODUCT_NOT_FOUND", Message: "Product not found", StatusCode: http.StatusNotFound}
	ErrGoalNotFound        = &AppError{Code: "GOAL_NOT_FOUND", Message: "Goal not found", StatusCode: http.StatusNotFound}
	ErrPlanLimitReached    = &AppError{Code: "PLAN_LIMIT_REACHED", Message: "Free plan transaction limit reached. Upgrade to PRO to keep adding transactions.", StatusCode: http.StatusForbidden}
)

// Subscription and billing errors.
var (
	ErrSubscriptionNotFound   = &AppError{Code: "SUBSCRIPTION_NOT_FOUND", Message: "Subscription not found", StatusCode: http.StatusNotFound}
	ErrProviderConflict       = &AppError{Code: "PROVIDER_CONFLICT", Message: "Subscription is already managed by another payment provider", StatusCode: http.StatusConflict}
	ErrProviderFailure        = &AppError{Code: "PROVIDER_ERROR", Message: "Payment provider request failed", StatusCode: http.StatusBadGateway}
	ErrProviderNotConfigured  = &AppError{Code: "PROVIDER_NOT_CONFIGURED", Message: "Payment provider is not configured", StatusCode: http.StatusServiceUnavailable}
	ErrSubscriptionUnresolved = &AppError{Code: "SUBSCRIPTION_UNRESOLVED", Message: "Webhook references no resolvable subscription", StatusCode: http.StatusInternalServerError}
)
