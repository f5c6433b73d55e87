// Package apperr defines the error taxonomy shared across the sync and query
// paths, and the mapping from each kind to an HTTP status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by where it originated and how callers should react.
type Kind int

const (
	// KindUpstream covers external API failures: network errors, non-2xx
	// responses, timeouts while fetching pages or exchanging tokens.
	KindUpstream Kind = iota + 1
	// KindAuth covers missing, malformed, expired or unverifiable credentials.
	KindAuth
	// KindNotFound marks an absent user or class. Expected, not exceptional.
	KindNotFound
	// KindValidation marks a malformed record during transform. Skipped and
	// counted, never fatal to a sync pass.
	KindValidation
	// KindStore covers backing-store unavailability or failed operations.
	KindStore
)

var kindNames = map[Kind]string{
	KindUpstream:   "upstream",
	KindAuth:       "auth",
	KindNotFound:   "not_found",
	KindValidation: "validation",
	KindStore:      "store",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Error carries a kind, a caller-safe message and an optional wrapped cause.
// The cause is for operational logs only and never reaches a response body.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match against a bare-kind sentinel, e.g.
// errors.Is(err, apperr.NotFound("")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func Upstream(format string, args ...any) *Error   { return newf(KindUpstream, nil, format, args...) }
func Auth(format string, args ...any) *Error       { return newf(KindAuth, nil, format, args...) }
func NotFound(format string, args ...any) *Error   { return newf(KindNotFound, nil, format, args...) }
func Validation(format string, args ...any) *Error { return newf(KindValidation, nil, format, args...) }
func Store(format string, args ...any) *Error      { return newf(KindStore, nil, format, args...) }

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return newf(kind, cause, format, args...)
}

// KindOf extracts the kind from err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }

// HTTPStatus maps an error to the status code exposed to API clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream, KindStore:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the caller-safe message for a response body. Wrapped
// causes are deliberately omitted.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
