package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound     ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrCode = "UNAUTHORIZED"
	ErrCodeRateLimited  ErrCode = "RATE_LIMITED"
	ErrCodeInternal     ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest   ErrCode = "BAD_REQUEST"
	ErrCodeForbidden    ErrCode = "FORBIDDEN"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimited,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// TransportError is a failed fetch against a provider API. It is fatal for
// the run: no eligibility is computed from partial data.
type TransportError struct {
	Operation        string
	StatusCode       int
	Message          string
	DocumentationURL string
	Err              error
}

func (e *TransportError) Error() string {
	msg := e.Operation + " failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" with status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.DocumentationURL != "" {
		msg += " (see " + e.DocumentationURL + ")"
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MutationError is a failed grant or revoke call. It is reported and the
// reconciler moves on to the next handle.
type MutationError struct {
	Action           string
	Handle           string
	Target           string
	StatusCode       int
	Message          string
	DocumentationURL string
	Err              error
}

func (e *MutationError) Error() string {
	verb := "add"
	prep := "to"
	if e.Action == "revoke" {
		verb = "remove"
		prep = "from"
	}
	msg := fmt.Sprintf("couldn't %s @%s %s %s team", verb, e.Handle, prep, e.Target)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.DocumentationURL != "" {
		msg += ". See " + e.DocumentationURL
	}
	return msg
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeRateLimited
	}
	return false
}

// IsTransport checks if the error is a fetch-phase transport error
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// IsMutation checks if the error is an apply-phase mutation error
func IsMutation(err error) bool {
	var mErr *MutationError
	return errors.As(err, &mErr)
}
