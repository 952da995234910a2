// Package apperr classifies failures surfaced to callers of the read and sync paths.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the error class reported to callers.
type Kind int

const (
	// Internal covers serialization and decoding defects.
	Internal Kind = iota
	// NotFound is an unknown vehicle, site or session id.
	NotFound
	// Unreachable means the device is offline or asleep and no usable cache exists.
	Unreachable
	// Upstream covers gateway errors, rate limiting and malformed payloads.
	Upstream
	// Configuration is missing credentials or keys.
	Configuration
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unreachable:
		return "unreachable"
	case Upstream:
		return "upstream_failure"
	case Configuration:
		return "configuration"
	default:
		return "internal"
	}
}

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind with a plain message.
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(message)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind onto the status code used by the HTTP layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case Unreachable:
		return http.StatusRequestTimeout
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
