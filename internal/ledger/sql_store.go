package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/genfoo/backend/internal/config"
	"github.com/genfoo/backend/internal/models"
)

const entryColumns = `identity, balance, email, created_at, updated_at`

const (
	insertAccountSQL = `
		INSERT INTO ledger_accounts (identity, balance, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (identity) DO NOTHING`

	decrementSQL = `
		UPDATE ledger_accounts
		SET balance = balance - $1, updated_at = $2
		WHERE identity = $3 AND balance >= $1
		RETURNING ` + entryColumns

	incrementSQL = `
		UPDATE ledger_accounts
		SET balance = balance + $1, updated_at = $2
		WHERE identity = $3
		RETURNING ` + entryColumns

	selectAccountSQL = `SELECT ` + entryColumns + ` FROM ledger_accounts WHERE identity = $1`

	accountExistsSQL = `SELECT 1 FROM ledger_accounts WHERE identity = $1`

	insertPaymentEventSQL = `
		INSERT INTO processed_payment_events (event_id, identity, product_id, credits, processed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`
)

var placeholder = regexp.MustCompile(`\$(\d+)`)

// SQLStore implements Store on PostgreSQL or SQLite. Statements are written
// with $n placeholders and rewritten to ?n for SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: driver,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SQLStore) rebind(query string) string {
	if s.dialect != config.DriverSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?$1")
}

// Ping checks that the backing database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) CreateIfAbsent(ctx context.Context, identity, email string, startingBalance int64) (bool, error) {
	if identity == "" {
		return false, ErrInvalidIdentity
	}
	if startingBalance < 0 {
		return false, ErrInvalidAmount
	}

	result, err := s.db.ExecContext(ctx, s.rebind(insertAccountSQL),
		identity, startingBalance, nullableString(email), s.now())
	if err != nil {
		return false, fmt.Errorf("ledger: create account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger: create account: %w", err)
	}
	return rowsAffected == 1, nil
}

func (s *SQLStore) TryDecrement(ctx context.Context, identity string, amount int64) (models.LedgerEntry, error) {
	if err := validate(identity, amount); err != nil {
		return models.LedgerEntry{}, err
	}

	entry, err := scanEntry(s.db.QueryRowContext(ctx, s.rebind(decrementSQL), amount, s.now(), identity))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, fmt.Errorf("ledger: decrement: %w", err)
	}

	// The guard rejected the write; tell a missing row from a short balance.
	var one int
	err = s.db.QueryRowContext(ctx, s.rebind(accountExistsSQL), identity).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.LedgerEntry{}, ErrNotFound
	case err != nil:
		return models.LedgerEntry{}, fmt.Errorf("ledger: decrement: %w", err)
	default:
		return models.LedgerEntry{}, ErrInsufficientFunds
	}
}

func (s *SQLStore) Increment(ctx context.Context, identity string, amount int64) (models.LedgerEntry, error) {
	if err := validate(identity, amount); err != nil {
		return models.LedgerEntry{}, err
	}

	entry, err := scanEntry(s.db.QueryRowContext(ctx, s.rebind(incrementSQL), amount, s.now(), identity))
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, ErrNotFound
	}
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("ledger: increment: %w", err)
	}
	return entry, nil
}

func (s *SQLStore) Read(ctx context.Context, identity string) (models.LedgerEntry, error) {
	if identity == "" {
		return models.LedgerEntry{}, ErrInvalidIdentity
	}

	entry, err := scanEntry(s.db.QueryRowContext(ctx, s.rebind(selectAccountSQL), identity))
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEntry{}, ErrNotFound
	}
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("ledger: read: %w", err)
	}
	return entry, nil
}

func (s *SQLStore) ApplyPurchase(ctx context.Context, eventID, identity, productID string, amount int64) (models.LedgerEntry, error) {
	if eventID == "" {
		return models.LedgerEntry{}, errors.New("ledger: payment event id is required")
	}
	if err := validate(identity, amount); err != nil {
		return models.LedgerEntry{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("ledger: begin purchase: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	result, err := tx.ExecContext(ctx, s.rebind(insertPaymentEventSQL), eventID, identity, productID, amount, now)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("ledger: record payment event: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("ledger: record payment event: %w", err)
	}
	if rowsAffected == 0 {
		return models.LedgerEntry{}, ErrDuplicateEvent
	}

	entry, err := scanEntry(tx.QueryRowContext(ctx, s.rebind(incrementSQL), amount, now, identity))
	if errors.Is(err, sql.ErrNoRows) {
		// Rolled back with the event row so a redelivery can still apply.
		return models.LedgerEntry{}, ErrNotFound
	}
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("ledger: credit purchase: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("ledger: commit purchase: %w", err)
	}
	return entry, nil
}

func scanEntry(row *sql.Row) (models.LedgerEntry, error) {
	var (
		entry models.LedgerEntry
		email sql.NullString
	)
	err := row.Scan(
		&entry.Identity,
		&entry.Balance,
		&email,
		timestamp{&entry.CreatedAt},
		timestamp{&entry.UpdatedAt},
	)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if email.Valid {
		entry.Email = &email.String
	}
	return entry, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
