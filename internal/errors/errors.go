// Package errors defines the service error taxonomy shared across the
// marketplace core. Every error a service returns to a caller is a
// *ServiceError; anything else is treated as an internal failure.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the error class.
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeInvalidState Code = "INVALID_STATE"
	CodeConflict     Code = "CONFLICT"
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeInternal     Code = "INTERNAL"
)

// ServiceError carries an error class, a caller-facing message, the HTTP
// status it maps to, and optional structured details.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a structured detail and returns the error for
// chaining.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NotFound reports an absent entity or one the actor may not see.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// Unauthorized reports an authenticated actor whose role or ownership
// forbids the action.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusForbidden}
}

// InvalidState reports an operation that is not valid given the entity's
// current state.
func InvalidState(message string) *ServiceError {
	return &ServiceError{Code: CodeInvalidState, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Conflict reports a duplicate of something that must be unique.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// Validation reports malformed input.
func Validation(message string) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Internal reports a primary persistence or infrastructure failure. The
// wrapped cause is kept for logs but never serialized to callers.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// InvalidToken reports an unusable bearer credential.
func InvalidToken(err error) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: "invalid token", HTTPStatus: http.StatusUnauthorized, Err: err}
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// HasCode reports whether err carries the given error class.
func HasCode(err error, code Code) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == code
}
