// Package apperror defines the client's error taxonomy.
//
// HOW ERRORS FLOW:
// The transport turns every failed call into an *AppError wrapping one of the
// sentinel errors below. Caches and the session store wrap it further with
// fmt.Errorf("...: %w", err) and return it to the caller. Front ends decide
// what to show with errors.Is:
//
//	errors.Is(err, apperror.ErrNotFound) → render a "not found" view
//	errors.Is(err, apperror.ErrAuth)     → show the sign-in form error
//	errors.Is(err, apperror.ErrNetwork)  → show a retryable message
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrAuth       = errors.New("authentication failed")
	ErrValidation = errors.New("validation error")
	ErrNetwork    = errors.New("network error")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrServer     = errors.New("server error")

	// ErrVotePending is returned when a vote is attempted on a target that
	// already has a vote in flight from this session.
	ErrVotePending = errors.New("vote already pending")

	// ErrUnmounted is returned when a view was closed (or re-targeted) while
	// its call was in flight; the result was discarded.
	ErrUnmounted = errors.New("view no longer mounted")
)

type AppError struct {
	Err     error  // sentinel
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Status  int    // HTTP status when the error came from a response, 0 otherwise
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Auth builds an authentication error (bad credentials, expired session).
func Auth(message string) *AppError {
	return &AppError{
		Err:     ErrAuth,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
		Status:  http.StatusNotFound,
	}
}

// ValidationFailed is raised client-side before a call is made, so it carries
// no status.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
		Status:  http.StatusConflict,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission,
// e.g. editing someone else's answer.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

// Server reports a 5xx answer from the forum API.
func Server(status int, message string) *AppError {
	return &AppError{
		Err:     ErrServer,
		Message: message,
		Status:  status,
	}
}

// Network wraps a transport-level failure (DNS, refused connection, timeout).
// These are user-visible and retryable; the client never retries on its own.
func Network(op string, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrNetwork, cause),
		Message: fmt.Sprintf("%s: could not reach the server, please try again", op),
	}
}

// BadResponse reports a 2xx answer whose body could not be read as the
// expected JSON, e.g. a proxy's HTML page. It counts as a server error.
func BadResponse(op string, status int, cause error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrServer, cause),
		Message: fmt.Sprintf("%s: the server sent a response the client could not read", op),
		Status:  status,
	}
}

// FromStatus maps a non-2xx response to the taxonomy. body is the response
// text; a short one becomes the message, anything else falls back to the
// status text.
func FromStatus(status int, body string) *AppError {
	msg := strings.TrimSpace(body)
	if msg == "" || len(msg) > 200 {
		msg = http.StatusText(status)
	}

	var sentinel error
	switch {
	case status == http.StatusUnauthorized:
		sentinel = ErrAuth
	case status == http.StatusForbidden:
		sentinel = ErrForbidden
	case status == http.StatusNotFound:
		sentinel = ErrNotFound
	case status == http.StatusConflict:
		sentinel = ErrConflict
	case status >= 500:
		sentinel = ErrServer
	default:
		sentinel = ErrValidation
	}

	return &AppError{Err: sentinel, Message: msg, Status: status}
}

// Retryable reports whether retrying the same call later could succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServer)
}
