// Package errors defines the service error taxonomy shared by the API layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure in API responses.
type ErrorCode string

const (
	CodeBadRequest   ErrorCode = "BAD_REQUEST"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeRateLimited  ErrorCode = "RATE_LIMITED"
	CodeInternal     ErrorCode = "INTERNAL"
)

// ServiceError carries an HTTP status and a client-safe message alongside the
// underlying cause.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// WithDetails attaches a key/value pair for the response body.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// BadRequest builds a 400 validation error.
func BadRequest(message string) *ServiceError {
	return &ServiceError{Code: CodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized builds a 401 error.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// NotFound builds a 404 error.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// Conflict builds a 409 business-rule error.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// RateLimited builds a 429 error.
func RateLimited(message string) *ServiceError {
	return &ServiceError{Code: CodeRateLimited, Message: message, HTTPStatus: http.StatusTooManyRequests}
}

// Internal builds a 500 error wrapping the cause. The cause is logged server
// side and never serialized to clients.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, cause: cause}
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}
