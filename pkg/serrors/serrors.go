// Package serrors carries semantic error kinds through ordinary error chains
// so that the HTTP layer can pick a status code without knowing which
// component failed.
package serrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a semantic error category. Kinds are sentinels: compare them with
// errors.Is.
type Kind interface {
	error
	isKind()
}

type kind struct {
	name   string
	status int
}

func (k kind) Error() string { return k.name }
func (k kind) isKind()       {}

// NewKind creates a new semantic error kind answered with the given HTTP status.
func NewKind(name string, status int) Kind { return kind{name: name, status: status} }

var (
	// ErrBadRequest indicates the client sent invalid data.
	ErrBadRequest = NewKind("BAD_REQUEST", http.StatusBadRequest)
	// ErrDisallowedHost indicates the Host header is not one of the allowed hosts.
	ErrDisallowedHost = NewKind("DISALLOWED_HOST", http.StatusBadRequest)
	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = NewKind("UNAUTHORIZED", http.StatusUnauthorized)
	// ErrForbidden indicates the caller is authenticated but not allowed.
	ErrForbidden = NewKind("FORBIDDEN", http.StatusForbidden)
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = NewKind("NOT_FOUND", http.StatusNotFound)
	// ErrMethodNotAllowed indicates the route exists but not for this method.
	ErrMethodNotAllowed = NewKind("METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = NewKind("CONFLICT", http.StatusConflict)
	// ErrInternal indicates an internal server error.
	ErrInternal = NewKind("INTERNAL", http.StatusInternalServerError)
	// ErrUnavailable indicates a dependency (database, cache) is unreachable.
	ErrUnavailable = NewKind("UNAVAILABLE", http.StatusServiceUnavailable)
)

// Error is a semantic error: a kind, an optional cause and an optional message.
//
// errors.Is and errors.As match either the kind or anything in the cause chain.
// The string form is "<msg>: <cause>", "<msg>", "<cause>" or the kind name,
// depending on what is set.
type Error struct {
	kind Kind
	err  error
	msg  string
}

// With constructs a semantic error with a formatted message and no cause.
func With(k Kind, msgFmt string, args ...any) *Error {
	return &Error{kind: k, msg: fmt.Sprintf(msgFmt, args...)}
}

// Wrap constructs a semantic error wrapping err with a formatted message.
func Wrap(k Kind, err error, msgFmt string, args ...any) *Error {
	return &Error{kind: k, err: err, msg: fmt.Sprintf(msgFmt, args...)}
}

// KindOnly creates a semantic error carrying only the kind.
func KindOnly(k Kind) *Error { return &Error{kind: k} }

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.msg != "" && e.err != nil:
		return e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.msg
	case e.err != nil:
		return e.err.Error()
	case e.kind != nil:
		return e.kind.Error()
	default:
		return "unknown error"
	}
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return e == nil && target == nil
	}
	if e.kind != nil && errors.Is(e.kind, target) {
		return true
	}

	return e.err != nil && errors.Is(e.err, target)
}

func (e *Error) As(target any) bool {
	if e == nil || target == nil {
		return false
	}
	if e.kind != nil && errors.As(e.kind, target) {
		return true
	}

	return e.err != nil && errors.As(e.err, target)
}

// Kind returns the semantic kind, or nil.
func (e *Error) Kind() Kind { return e.kind }

// Message returns the message attached to this error.
func (e *Error) Message() string { return e.msg }

// Cause returns the wrapped cause, or nil.
func (e *Error) Cause() error { return e.err }

// KindOf returns the first semantic kind found in err's chain, or ErrInternal
// when there is none.
func KindOf(err error) Kind {
	var k Kind
	if errors.As(err, &k) {
		return k
	}

	return ErrInternal
}

// HTTPStatus maps err to the status code of its kind.
func HTTPStatus(err error) int {
	if k, ok := KindOf(err).(kind); ok {
		return k.status
	}

	return http.StatusInternalServerError
}
