// Package errors provides the structured application error used at the API edge,
// and maps domain and database errors onto it.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/target/harvestd/internal/domain"
	"github.com/target/harvestd/internal/harvester"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnprocessable is a well-formed request the current state does not allow,
	// such as work requested for an inactive source.
	ErrCodeUnprocessable ErrorCode = "unprocessable"
	ErrCodeForeignKey    ErrorCode = "foreign_key"
	ErrCodeInternal      ErrorCode = "internal"
	ErrCodeTimeout       ErrorCode = "timeout"
	ErrCodeCanceled      ErrorCode = "canceled"
)

// AppError is an error with a code that decides the HTTP status and a message
// that is safe to show to API clients.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending column or input, when known.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Validation creates a validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Wrap attaches a code and client message to err. It returns nil for a nil err.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// GetCode returns the ErrorCode of err, or "" when err carries no AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// FromDomain maps harvest domain sentinels and database errors to an AppError.
// Errors it does not recognise are wrapped as Internal.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrSourceNotFound),
		errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrDatasetNotFound),
		errors.Is(err, harvester.ErrHarvesterNotFound):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	case errors.Is(err, domain.ErrJobAlreadyExists):
		return Wrap(err, ErrCodeConflict, "There already is an unrun job for this source")
	case errors.Is(err, domain.ErrSourceInactive):
		return Wrap(err, ErrCodeUnprocessable, "Harvest source is inactive")
	case errors.Is(err, domain.ErrNoObjectsToImport):
		return Wrap(err, ErrCodeNotFound, "No harvest objects to import")
	case errors.Is(err, domain.ErrInvalidFrequency):
		return Wrap(err, ErrCodeValidation, "Invalid frequency")
	}

	if mapped := MapDBError(err); errors.As(mapped, &appErr) {
		return appErr
	}
	return Wrap(err, ErrCodeInternal, "Internal error")
}

// HTTPStatus returns the HTTP status code for an error code.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeForeignKey:
		return http.StatusConflict
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeUnprocessable:
		return http.StatusUnprocessableEntity
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeCanceled:
		// Client closed request.
		return 499
	default:
		return http.StatusInternalServerError
	}
}
