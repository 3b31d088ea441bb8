// Package apperrors defines the error kinds surfaced by the
// reconciliation core. Handlers map kinds to HTTP statuses; services
// return them instead of ad hoc sentinel errors.
package apperrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

type Kind string

const (
	// KindValidation rejects malformed input at ingestion. Nothing is
	// partially persisted.
	KindValidation Kind = "validation"

	// KindCurrencyMismatch guards the scoring boundary: candidates must
	// never cross currencies.
	KindCurrencyMismatch Kind = "currency_mismatch"

	// KindInvalidState signals a violated state invariant, e.g. deciding
	// a transaction that already has an active decision.
	KindInvalidState Kind = "invalid_state"

	// KindNotFound signals a missing transaction, invoice or decision.
	KindNotFound Kind = "not_found"

	// KindExternalWriteBack signals the invoice provider rejected or
	// never acknowledged a balance update after retries were exhausted.
	KindExternalWriteBack Kind = "external_write_back"
)

// Error carries a kind plus an optional wrapped cause. The cause keeps a
// stack trace so provider/storage failures stay debuggable in logs.
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

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause. Returns nil
// for a nil cause so call sites can wrap unconditionally.
func Wrap(cause error, kind Kind, format string, args ...interface{}) *Error {
	if cause == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   pkgerrors.WithStack(cause),
	}
}

// KindOf extracts the kind of err, or "" if err is not an apperrors.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an apperrors.Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
