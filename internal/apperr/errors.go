// Package apperr defines the application error taxonomy shared by the
// repository, service and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindApplication Kind = iota
	KindInsufficientData
	KindExcessData
	KindValidation
	KindNotFound
	KindConcurrency
	KindNotModified
	KindRepository
)

var kindNames = map[Kind]string{
	KindApplication:      "application",
	KindInsufficientData: "insufficient_data",
	KindExcessData:       "excess_data",
	KindValidation:       "validation",
	KindNotFound:         "not_found",
	KindConcurrency:      "concurrency",
	KindNotModified:      "not_modified",
	KindRepository:       "repository",
}

var defaultMessages = map[Kind]string{
	KindApplication:      "An unexpected application error occurred.",
	KindInsufficientData: "Insufficient data provided.",
	KindExcessData:       "Too much data provided.",
	KindValidation:       "The provided data is invalid or in incorrect format.",
	KindNotFound:         "The data could not be found.",
	KindConcurrency:      "A concurrency conflict occurred while accessing shared resources.",
	KindNotModified:      "No changes have been detected.",
	KindRepository:       "An error occurred while accessing the repository.",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DefaultMessage returns the human readable message used when none is given.
func (k Kind) DefaultMessage() string {
	return defaultMessages[k]
}

// Error is an application error. It is immutable once constructed.
type Error struct {
	kind    Kind
	message string
	cause   error
	data    map[string]any
}

// Option configures an Error at construction.
type Option func(*Error)

// WithMessage overrides the default message of the kind.
func WithMessage(msg string) Option {
	return func(e *Error) {
		if msg != "" {
			e.message = msg
		}
	}
}

// WithCause attaches the lower level error.
func WithCause(err error) Option {
	return func(e *Error) { e.cause = err }
}

// WithData attaches diagnostic key/value pairs. The map is copied.
func WithData(data map[string]any) Option {
	return func(e *Error) {
		if len(data) == 0 {
			return
		}
		if e.data == nil {
			e.data = make(map[string]any, len(data))
		}
		for k, v := range data {
			e.data[k] = v
		}
	}
}

// New builds an Error of the given kind.
func New(kind Kind, opts ...Option) *Error {
	e := &Error{kind: kind, message: kind.DefaultMessage()}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Message() string { return e.message }

// Cause returns the lower level error, or nil.
func (e *Error) Cause() error { return e.cause }

// Data returns a copy of the diagnostic data.
func (e *Error) Data() map[string]any {
	if len(e.data) == 0 {
		return nil
	}
	out := make(map[string]any, len(e.data))
	for k, v := range e.data {
		out[k] = v
	}
	return out
}

func InsufficientData(data map[string]any) *Error {
	return New(KindInsufficientData, WithData(data))
}

func ExcessData(data map[string]any) *Error {
	return New(KindExcessData, WithData(data))
}

func Validation(cause error) *Error {
	return New(KindValidation, WithCause(cause))
}

func NotFound(cause error) *Error {
	return New(KindNotFound, WithCause(cause))
}

func Concurrency(cause error) *Error {
	return New(KindConcurrency, WithCause(cause))
}

func NotModified() *Error {
	return New(KindNotModified)
}

func Repository(msg string, cause error) *Error {
	return New(KindRepository, WithMessage(msg), WithCause(cause))
}

func Application(msg string, cause error) *Error {
	return New(KindApplication, WithMessage(msg), WithCause(cause))
}

// KindOf reports the kind of err, or KindApplication when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindApplication
}

// Is reports whether err is an *Error of the given kind (outermost only).
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kind
}

// HasCause walks the cause chain of err looking for target.
func HasCause(err, target error) bool {
	if err == nil {
		return false
	}
	if err == target {
		return true
	}
	if e, ok := err.(*Error); ok {
		return HasCause(e.cause, target)
	}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		for _, inner := range u.Unwrap() {
			if HasCause(inner, target) {
				return true
			}
		}
		return false
	}
	return HasCause(errors.Unwrap(err), target)
}

// CauseAs walks the cause chain of err and returns the first error of type T.
func CauseAs[T error](err error) (T, bool) {
	var zero T
	if err == nil {
		return zero, false
	}
	if t, ok := err.(T); ok {
		return t, true
	}
	if e, ok := err.(*Error); ok {
		return CauseAs[T](e.cause)
	}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		for _, inner := range u.Unwrap() {
			if t, ok := CauseAs[T](inner); ok {
				return t, true
			}
		}
		return zero, false
	}
	return CauseAs[T](errors.Unwrap(err))
}
