package ledger

import (
	"context"
	"errors"

	"github.com/genfoo/backend/internal/models"
)

var (
	ErrNotFound          = errors.New("ledger: account not found")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrDuplicateEvent    = errors.New("ledger: payment event already applied")
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
	ErrInvalidIdentity   = errors.New("ledger: identity is required")
)

// Store owns every credit balance. Implementations must make each
// mutation atomic in the backing store; callers never read-modify-write.
type Store interface {
	// CreateIfAbsent inserts a ledger row and reports whether it was new.
	// An existing row is left untouched.
	CreateIfAbsent(ctx context.Context, identity, email string, startingBalance int64) (bool, error)

	// TryDecrement subtracts amount only if the balance covers it.
	TryDecrement(ctx context.Context, identity string, amount int64) (models.LedgerEntry, error)

	// Increment adds amount to an existing row.
	Increment(ctx context.Context, identity string, amount int64) (models.LedgerEntry, error)

	Read(ctx context.Context, identity string) (models.LedgerEntry, error)

	// ApplyPurchase records eventID and credits identity in one transaction.
	// A previously recorded eventID yields ErrDuplicateEvent and no credit.
	ApplyPurchase(ctx context.Context, eventID, identity, productID string, amount int64) (models.LedgerEntry, error)
}

func validate(identity string, amount int64) error {
	if identity == "" {
		return ErrInvalidIdentity
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
