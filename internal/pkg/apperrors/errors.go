package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	// pipeline kinds
	ErrSourceUnavailable ErrorType = "SOURCE_UNAVAILABLE"
	ErrAlreadyInFlight   ErrorType = "ALREADY_IN_FLIGHT"
	ErrScreeningFailed   ErrorType = "SCREENING_FAILED"
	ErrExecutionFailed   ErrorType = "EXECUTION_FAILED"
	ErrTradingDisabled   ErrorType = "TRADING_DISABLED"

	// adapter kinds
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrRateLimited    ErrorType = "RATE_LIMITED"
)

// AppError is the standard error struct for the application.
// Reasons carries the machine-readable detail list, e.g. the failed screening checks.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Reasons    []string  `json:"reasons,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	msg := e.Message
	if len(e.Reasons) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(e.Reasons, "; "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

// WithReasons returns a copy of e carrying the given reasons.
func (e *AppError) WithReasons(reasons ...string) *AppError {
	cp := *e
	cp.Reasons = append([]string(nil), reasons...)
	return &cp
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewSourceUnavailable(msg string, cause error) *AppError {
	return New(ErrSourceUnavailable, msg, cause)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// TypeOf reports the kind of err, or ErrInternal for foreign errors.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	return Wrap(err).Type
}

func Is(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrAlreadyInFlight:
		return http.StatusConflict
	case ErrScreeningFailed:
		return http.StatusUnprocessableEntity
	case ErrTradingDisabled, ErrSourceUnavailable:
		return http.StatusServiceUnavailable
	case ErrExecutionFailed:
		return http.StatusBadGateway
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrAlreadyInFlight:
		return "An order for this token is in flight. Resubmit after it completes."
	case ErrScreeningFailed:
		return "Token failed screening; see reasons for the failed checks."
	case ErrExecutionFailed:
		return "Order placement failed. Check executor state before resubmitting manually."
	case ErrTradingDisabled:
		return "Trading is disabled by the operator."
	case ErrSourceUnavailable:
		return "Upstream data source unavailable. Retry later."
	case ErrAuthFailed:
		return "Check the admin key."
	case ErrRateLimited:
		return "Slow down and retry after the Retry-After interval."
	default:
		return ""
	}
}
