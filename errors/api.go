package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is an error that maps directly to a wire response. It is the
// mechanism by which inbox handlers communicate "the remote's data was the
// problem" outcomes: the pipeline translates the status and description
// into the HTTP response, and the queue treats any APIError below 500 as a
// soft failure that must not be retried.
type APIError struct {
	// Status is the HTTP status code to return to the sender.
	Status int
	// ErrorText is the machine-readable error string ("error" field).
	ErrorText string
	// Description is the optional human-readable detail.
	Description string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.ErrorText, e.Description)
	}
	return fmt.Sprintf("%d %s", e.Status, e.ErrorText)
}

// NewAPIError creates an APIError with the given status and error text
func NewAPIError(status int, errorText string) *APIError {
	return &APIError{Status: status, ErrorText: errorText}
}

// NewAPIErrorf creates an APIError with a formatted description
func NewAPIErrorf(status int, errorText, format string, args ...any) *APIError {
	return &APIError{
		Status:      status,
		ErrorText:   errorText,
		Description: fmt.Sprintf(format, args...),
	}
}

// BadRequest returns a 400 APIError
func BadRequest(errorText string) *APIError {
	return NewAPIError(http.StatusBadRequest, errorText)
}

// Unauthorized returns a 401 APIError
func Unauthorized(errorText string) *APIError {
	return NewAPIError(http.StatusUnauthorized, errorText)
}

// Forbidden returns a 403 APIError
func Forbidden(errorText string) *APIError {
	return NewAPIError(http.StatusForbidden, errorText)
}

// NotFound returns a 404 APIError
func NotFound(errorText string) *APIError {
	return NewAPIError(http.StatusNotFound, errorText)
}

// Internal returns a 500 APIError
func Internal(errorText string) *APIError {
	return NewAPIError(http.StatusInternalServerError, errorText)
}

// AsAPIError extracts an APIError from an error chain. Returns nil if the
// chain contains no APIError.
func AsAPIError(err error) *APIError {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// StatusFor maps an arbitrary error to an HTTP status using its
// classification: APIErrors keep their own status, invalid input maps to
// 400, everything else to 500.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if ae := AsAPIError(err); ae != nil {
		return ae.Status
	}
	if IsInvalid(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
