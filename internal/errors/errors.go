// Package errors defines the typed failures the ledger core returns to its
// callers. The view layer maps these onto HTTP statuses; nothing in here is
// ever swallowed silently.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrWalletInactive         = errors.New("wallet is not active")
	ErrDuplicateCorrelationID = errors.New("duplicate server correlation id")
	ErrReferenceExhausted     = errors.New("transaction reference retries exhausted")
	ErrInvalidFilter          = errors.New("invalid batch status filter")
	ErrNotFound               = errors.New("requested resource not available")
	ErrMalformedIdentifier    = errors.New("malformed UUID")

	// ErrDuplicateReference is a repository-level signal: the generated
	// transaction reference collided with an existing row. The service
	// regenerates and retries; it never reaches the caller directly.
	ErrDuplicateReference = errors.New("duplicate transaction reference")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// InsufficientFundsError carries the available balance that was actually
// derived from the ledger at check time, as a diagnostic for the caller.
type InsufficientFundsError struct {
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %d, available %d",
		e.Requested, e.Available)
}

// InvalidStateTransitionError is returned when a transaction mutation is not
// in the allowed-transition table.
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}
