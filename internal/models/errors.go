package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors shared across services
var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateEntry      = errors.New("duplicate entry")
	ErrRefundNotEligible   = errors.New("payment order is not eligible for refund")
	ErrPayoutNotExecutable = errors.New("payout is not executable in its current state")
)

// InvalidTransitionError is returned when a state machine transition is not
// allowed by the transition table.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

// InsufficientFundsError is returned when a ledger debit would drive an
// account that does not allow negative balances below zero.
type InsufficientFundsError struct {
	AccountID uuid.UUID
	Account   string
	Balance   int64
	Debit     int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: balance %d, attempted debit %d", e.Account, e.Balance, e.Debit)
}

// IntegrityError is returned when a unique constraint violation surfaces
// under concurrent writes. Callers should re-read by idempotency key.
type IntegrityError struct {
	Key string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on %s: %v", e.Key, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// StaleObjectError is returned when an optimistic version check fails.
type StaleObjectError struct {
	Entity  string
	ID      uuid.UUID
	Version int
}

func (e *StaleObjectError) Error() string {
	return fmt.Sprintf("stale %s %s at version %d, reload and retry", e.Entity, e.ID, e.Version)
}
