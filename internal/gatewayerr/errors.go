// Package gatewayerr defines the transport-independent error taxonomy
// and its HTTP status mapping.
package gatewayerr

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind is one of the six error kinds the Routing Pipeline can surface.
type Kind string

const (
	Unauthenticated Kind = "unauthenticated"
	Forbidden       Kind = "forbidden"
	BudgetExceeded  Kind = "budget_exceeded"
	NoUpstream      Kind = "no_upstream"
	UpstreamError   Kind = "upstream_error"
	ValidationError Kind = "validation_error"
)

var statusByKind = map[Kind]int{
	Unauthenticated: http.StatusUnauthorized,
	Forbidden:       http.StatusForbidden,
	BudgetExceeded:  http.StatusTooManyRequests,
	NoUpstream:      http.StatusNotFound,
	UpstreamError:   http.StatusBadGateway,
	ValidationError: http.StatusBadRequest,
}

// Error is a typed gateway error carrying its kind and a pkg/errors stack.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code this error kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New creates a bare gateway error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.New(message)}
}

// Wrap attaches kind and message to an underlying cause, preserving its
// stack trace via pkg/errors.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

// As reports whether err is (or wraps) a *Error, returning it if so.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// Body is the JSON shape returned to clients for structured errors.
type Body struct {
	Error struct {
		Message string `json:"message"`
		Type    Kind   `json:"type"`
	} `json:"error"`
}

// ToBody renders e as the client-facing JSON error body.
func (e *Error) ToBody() Body {
	var b Body
	b.Error.Message = e.Message
	b.Error.Type = e.Kind
	return b
}
