// Package pingerr defines the error kinds shared across Ping Watch's
// components and the single mapping from kind to HTTP status.
package pingerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-layer translation.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindUnauthorized        Kind = "unauthorized"
	KindBadRequest          Kind = "bad_request"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamAuth        Kind = "upstream_auth"
	KindInternal            Kind = "internal"
)

// Error wraps an underlying cause with a Kind and an operator-facing message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(message string) *Error     { return new(KindNotFound, message, nil) }
func Conflict(message string) *Error     { return new(KindConflict, message, nil) }
func Unauthorized(message string) *Error { return new(KindUnauthorized, message, nil) }
func BadRequest(message string) *Error   { return new(KindBadRequest, message, nil) }

func UpstreamUnavailable(message string, cause error) *Error {
	return new(KindUpstreamUnavailable, message, cause)
}

func UpstreamAuth(message string, cause error) *Error {
	return new(KindUpstreamAuth, message, cause)
}

func Internal(message string, cause error) *Error {
	return new(KindInternal, message, cause)
}

// KindOf extracts the Kind of err, defaulting to KindInternal for plain errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// HTTPStatus returns the status code the API middleware should write for err.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindUnauthorized:
		return 401
	case KindBadRequest:
		return 400
	case KindUpstreamUnavailable:
		return 502
	case KindUpstreamAuth:
		return 401
	default:
		return 500
	}
}
