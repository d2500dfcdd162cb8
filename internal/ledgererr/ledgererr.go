// Package ledgererr defines the error kinds the transaction core returns.
// Workflows surface these instead of raw store errors so the transport layer
// can map them to status codes in one place.
package ledgererr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindForbidden            Kind = "forbidden"
	KindInvalidState         Kind = "invalid_state"
	KindInvalidAmount        Kind = "invalid_amount"
	KindInsufficientFunds    Kind = "insufficient_funds"
	KindBankNotVerified      Kind = "bank_not_verified"
	KindBelowMinimum         Kind = "below_minimum"
	KindAmountExceedsPayment Kind = "amount_exceeds_payment"
	KindStoreUnavailable     Kind = "store_unavailable"
)

// Error is a workflow-level failure with enough structure to render a
// user-facing message. Expected conditions (insufficient funds, wrong state)
// travel through it too; they are not exceptional.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two ledger errors by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause, typically a store failure.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind, or empty string for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
