/*
errors.go - Centralized error kinds for the leave ledger

PURPOSE:
  Every failure that crosses a package boundary carries a Kind so callers
  can branch on it without parsing strings. The Message is the text shown
  to end users; Err keeps the underlying cause for logs.

ERROR KINDS:
  ValidationError      Malformed or missing input (e.g. decline without notes)
  NotFound             Referenced entity absent
  Forbidden            Role or ownership check failed
  AlreadyProcessed     Request is already approved or declined
  InsufficientBalance  Available or settled balance too low
  InvalidRange         Date range contains no business days
  Conflict             Concurrent mutation detected at commit time
  DuplicateKey         Storage uniqueness constraint violated
  Internal             Anything else (storage outage, bugs)

USAGE:
  return generic.Errorf(generic.KindInsufficientBalance,
      "Insufficient balance. Available: %s days", generic.FormatDays(avail))

  if generic.IsKind(err, generic.KindDuplicateKey) {
      // already accrued for this month
  }

  errors.Is(err, generic.ErrNotFound) also works: sentinels match by kind.

SEE ALSO:
  - api/handlers.go: maps kinds to HTTP status codes
  - store/sqlite/sqlite.go: translates driver errors into kinds
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// KIND - Machine-checkable error category
// =============================================================================

// Kind classifies an error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindAlreadyProcessed
	KindInsufficientBalance
	KindInvalidRange
	KindConflict
	KindDuplicateKey
)

var kindNames = map[Kind]string{
	KindInternal:            "INTERNAL",
	KindValidation:          "VALIDATION_ERROR",
	KindNotFound:            "NOT_FOUND",
	KindForbidden:           "FORBIDDEN",
	KindAlreadyProcessed:    "ALREADY_PROCESSED",
	KindInsufficientBalance: "INSUFFICIENT_BALANCE",
	KindInvalidRange:        "INVALID_RANGE",
	KindConflict:            "CONFLICT",
	KindDuplicateKey:        "DUPLICATE_KEY",
}

// String returns the wire code for the kind, e.g. "NOT_FOUND".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrAlreadyProcessed    = &Error{Kind: KindAlreadyProcessed, Message: "Request already processed"}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "insufficient balance"}
	ErrInvalidRange        = &Error{Kind: KindInvalidRange, Message: "Invalid date range"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "concurrent modification detected"}
	ErrDuplicateKey        = &Error{Kind: KindDuplicateKey, Message: "duplicate key"}
)

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// Error is the single error type returned by the ledger.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// E builds an error of the given kind.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf builds an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and display message to an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the user-facing message for err.
// Internal errors get a generic message so storage details do not leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "Internal server error"
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return IsKind(err, KindConflict)
}

// IsClientError returns true if the error is due to the caller's input or state.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindInternal, KindConflict:
		return false
	default:
		return true
	}
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}
