// Package errors defines the JSON error envelope returned by the API and the
// constructors used by middleware that rejects a request before it reaches a
// handler. Transaction errors are classified in the domain package and only
// converted here.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("resource conflict")
	ErrNotFound     = errors.New("resource not found")
)

// AppError is an error with an API code and HTTP status attached.
type AppError struct {
	Code       string
	Message    string
	Details    map[string]any
	StatusCode int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, anything else through the wrapped error.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// ErrorResponse is the JSON envelope {"error": {...}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the body of ErrorResponse.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// NewAppError creates an AppError. A zero status means 500.
func NewAppError(code, message string, statusCode int, err error) *AppError {
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

func Unauthorized(code, message string) *AppError {
	if code == "" {
		code = "UNAUTHORIZED"
	}
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(code, message, http.StatusUnauthorized, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return NewAppError("FORBIDDEN", message, http.StatusForbidden, ErrForbidden)
}

func Conflict(code, message string) *AppError {
	if code == "" {
		code = "CONFLICT"
	}
	return NewAppError(code, message, http.StatusConflict, ErrConflict)
}

// RouteNotFound answers a request for a path the router does not serve.
func RouteNotFound(method, path string) *AppError {
	return NewAppError("ROUTE_NOT_FOUND", fmt.Sprintf("no route for %s %s", method, path), http.StatusNotFound, ErrNotFound)
}

// Internal hides err from the client behind a generic message.
func Internal(err error) *AppError {
	return NewAppError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError, err)
}

// WithDetails replaces the error details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// ToResponse builds the envelope, echoing the request id so operators can
// find the matching log lines.
func (e *AppError) ToResponse(requestID string) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:      e.Code,
			Message:   e.Message,
			Details:   e.Details,
			RequestID: requestID,
		},
	}
}
