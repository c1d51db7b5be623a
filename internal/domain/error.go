package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Completion failures
	ErrNetwork           = errors.New("network error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMalformedResponse = errors.New("malformed response")
	ErrProviderStatus    = errors.New("provider returned an error status")

	// Storage failures
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Session state machine
	ErrRequestInFlight = errors.New("a reply is already pending")
	ErrBusy            = errors.New("completion queue is full")
	ErrSessionClosed   = errors.New("session closed")
)

// CompletionError is returned by completion clients. errors.Is matches both
// the Kind sentinel and the wrapped cause.
type CompletionError struct {
	Op         string
	Kind       error
	StatusCode int
	Err        error
}

func (e *CompletionError) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *CompletionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewCompletionError(op string, kind error, status int, err error) *CompletionError {
	return &CompletionError{Op: op, Kind: kind, StatusCode: status, Err: err}
}

// StorageError wraps a backend failure; it always matches ErrStorageUnavailable.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %q: %v: %v", e.Op, e.Key, ErrStorageUnavailable, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

func NewStorageError(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}

// ErrorCode maps an error to a stable code used by the UI and metrics.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrProviderStatus):
		return "provider_error"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrRequestInFlight):
		return "request_in_flight"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}
