// Package lifecycle implements the marketplace state machines: job
// assignment and completion, proposal review, escrow funding and release, and
// the notifications each transition emits.
package lifecycle

import (
	"errors"
	"fmt"
)

// Kind classifies a lifecycle failure.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindInvalidState        Kind = "invalid_state"
	KindConflict            Kind = "conflict"
	KindPaymentVerification Kind = "payment_verification_failed"
	KindUnavailable         Kind = "dependency_unavailable"
)

// Error is returned by every manager operation.
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

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the Kind of err, or "" when err is not a lifecycle error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a lifecycle error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func notFound(entity string) *Error {
	return newError(KindNotFound, "%s not found", entity)
}

func forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func invalidState(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}

func conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func verificationFailed(format string, args ...any) *Error {
	return newError(KindPaymentVerification, format, args...)
}

// unavailable wraps a store or gateway failure. Errors that already carry a
// Kind pass through unchanged.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindUnavailable, Message: op, Cause: err}
}

// Outcome tells a caller whether an idempotent operation changed anything.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
)
