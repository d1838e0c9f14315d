// Package apperr defines the error taxonomy shared by the domain packages
// and the transport layer. Domain errors carry a Kind that maps to a
// transport status and a stable machine-readable Code.
package apperr

import (
	"github.com/go-faster/errors"
)

// Kind classifies a domain error.
type Kind uint8

const (
	// KindInternal is an unexpected failure (storage, encoding, bugs).
	KindInternal Kind = iota
	// KindValidation is a business or input rule violation.
	KindValidation
	// KindNotFound is a missing product, address, order or coupon record.
	KindNotFound
	// KindConflict is a concurrent or duplicate state change.
	KindConflict
	// KindUnauthorized is a missing or invalid caller identity.
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Coded is implemented by every error that belongs to the taxonomy.
type Coded interface {
	error
	Kind() Kind
	Code() string
}

// Error is the plain taxonomy error used for sentinels.
type Error struct {
	kind Kind
	code string
	msg  string
}

var _ Coded = (*Error)(nil)

// New creates a taxonomy error.
func New(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

// Validation creates a KindValidation error.
func Validation(code, msg string) *Error { return New(KindValidation, code, msg) }

// NotFound creates a KindNotFound error.
func NotFound(code, msg string) *Error { return New(KindNotFound, code, msg) }

// Conflict creates a KindConflict error.
func Conflict(code, msg string) *Error { return New(KindConflict, code, msg) }

// Unauthorized creates a KindUnauthorized error.
func Unauthorized(code, msg string) *Error { return New(KindUnauthorized, code, msg) }

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Code() string  { return e.code }

// Invalid wraps a cause into a validation error with the given code,
// keeping the cause's text as the message.
func Invalid(code string, cause error) error {
	return &wrapped{e: Error{kind: KindValidation, code: code, msg: cause.Error()}, cause: cause}
}

type wrapped struct {
	e     Error
	cause error
}

var _ Coded = (*wrapped)(nil)

func (w *wrapped) Error() string { return w.e.msg }
func (w *wrapped) Kind() Kind    { return w.e.kind }
func (w *wrapped) Code() string  { return w.e.code }
func (w *wrapped) Unwrap() error { return w.cause }

// As extracts the outermost taxonomy error from the chain.
func As(err error) (Coded, bool) {
	var c Coded
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if c, ok := As(err); ok {
		return c.Kind()
	}
	return KindInternal
}

// CodeOf returns the Code of err, or "internal_error" for foreign errors.
func CodeOf(err error) string {
	if c, ok := As(err); ok {
		return c.Code()
	}
	return "internal_error"
}
