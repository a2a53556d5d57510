package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an operation failure so the API layer can map
// it to a status code without parsing message text.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInvalidState      ErrorKind = "INVALID_STATE"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindInvalidInput      ErrorKind = "INVALID_INPUT"
	KindForbidden         ErrorKind = "FORBIDDEN"
	KindInternal          ErrorKind = "INTERNAL"
)

// OpError is the discriminated failure returned by every ledger
// operation. On any OpError no partial mutation is observable.
type OpError struct {
	Kind   ErrorKind
	Detail string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func opErrorf(kind ErrorKind, format string, args ...any) *OpError {
	return &OpError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, or KindInternal for
// unclassified failures (driver errors, commit faults).
func KindOf(err error) ErrorKind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindInternal
}
