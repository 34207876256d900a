// Package store defines the persistence interface for the ledger.
// Implementations include PostgreSQL (source of truth) and in-memory
// (for testing).
package store

import (
	"context"
	"errors"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrPayerNotFound     = errors.New("payer account not found")
	ErrRecipientNotFound = errors.New("recipient account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// BulkResult reports the outcome of one account's mutation during a bulk
// pass. Err is set when that account's update failed; the pass continues
// regardless.
type BulkResult struct {
	UserID  string
	Balance int64
	Err     error
}

// Store is the persistence interface. Balance reads and writes to a single
// account are linearizable; Transfer spans both accounts atomically.
type Store interface {
	// EnsureAccount creates the account with the starting balance if absent.
	// Idempotent: on an existing account it reports created=false and leaves
	// the balance untouched.
	EnsureAccount(ctx context.Context, userID string) (balance int64, created bool, err error)

	// GetBalance returns the current balance or ErrAccountNotFound.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// SetBalance unconditionally overwrites the balance and returns the new
	// value, or ErrAccountNotFound.
	SetBalance(ctx context.Context, userID string, balance int64) (int64, error)

	// Transfer atomically moves amount from payer to recipient and returns
	// both new balances. Either both balances change or neither does.
	// Errors: ErrPayerNotFound, ErrInsufficientFunds, ErrRecipientNotFound
	// (checked in that order).
	Transfer(ctx context.Context, payerID, recipientID string, amount int64) (payerBalance, recipientBalance int64, err error)

	// ForEachAccount applies mutate to every account's balance in ascending
	// user id order, one account at a time. A failure on one account is
	// recorded in its BulkResult and does not abort the pass. The returned
	// error covers only enumeration failures.
	ForEachAccount(ctx context.Context, mutate func(balance int64) int64) ([]BulkResult, error)

	// ResetAll destroys every account and balance, leaving an empty store.
	ResetAll(ctx context.Context) error
}
