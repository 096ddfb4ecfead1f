// Package errs defines the typed error kinds used at component boundaries.
//
// Components never raise across boundaries — the Watcher and Classifier
// swallow and log instead (see their packages) — but anything surfaced to
// the HTTP layer is wrapped in one of these kinds so the API boundary can
// map it to a status code without inspecting error strings.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error for HTTP-boundary mapping.
type Kind string

const (
	InvalidRequest      Kind = "invalid_request"
	Unauthorized        Kind = "unauthorized"
	Forbidden           Kind = "forbidden"
	NotFound            Kind = "not_found"
	UpstreamUnavailable Kind = "upstream_unavailable"
	ParseError          Kind = "parse_error"
	Internal            Kind = "internal"
)

// Error wraps an underlying cause with a Kind used for boundary mapping.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an existing error, preserving it as the cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

// As extracts a *Error from err, if any exists in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}
