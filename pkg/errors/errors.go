package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with transport awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	// ErrCacheMiss is expected during cache-first reads and never surfaced
	// to the caller; it only signals the fallback to a network read.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	ErrNotFound      = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict      = New("CONFLICT", http.StatusConflict, "conflict")
	ErrAlreadyMember = New("ALREADY_MEMBER", http.StatusConflict, "already a member of this class")
	ErrInvitePending = New("INVITE_PENDING", http.StatusConflict, "invitation already pending")
	ErrValidation    = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUnavailable   = New("STORE_UNAVAILABLE", http.StatusServiceUnavailable, "remote store unavailable")
	ErrTimeout       = New("TIMEOUT", http.StatusGatewayTimeout, "operation timed out")
	ErrInternal      = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// IsDomainConflict reports whether the error is a typed conflict the caller
// should translate to a specific user-facing message rather than a generic
// transport notice.
func IsDomainConflict(err error) bool {
	e := FromError(err)
	if e == nil {
		return false
	}
	switch e.Code {
	case ErrAlreadyMember.Code, ErrInvitePending.Code, ErrConflict.Code:
		return true
	default:
		return false
	}
}
