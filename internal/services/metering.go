package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/genfoo/backend/internal/ledger"
	"github.com/genfoo/backend/internal/models"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Meter charges for chat turns before they reach the completion API.
type Meter struct {
	deps Deps
	cost int64
}

func NewMeter(deps Deps, costPerTurn int64) *Meter {
	if costPerTurn <= 0 {
		costPerTurn = 1
	}
	return &Meter{deps: deps.withDefaults("metering"), cost: costPerTurn}
}

func (m *Meter) Cost() int64 { return m.cost }

// Admit takes the cost of one turn from identity's balance. Any failure,
// including a store error, refuses the turn.
func (m *Meter) Admit(ctx context.Context, identity string) (models.LedgerEntry, error) {
	reference := middleware.GetReqID(ctx)
	log := m.deps.Log.With(zap.String("identity", identity), zap.String("request_id", reference))

	entry, err := m.deps.Store.TryDecrement(ctx, identity, m.cost)
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		m.deps.Metrics.LedgerOperation("decrement", "insufficient_funds")
		return models.LedgerEntry{}, fmt.Errorf("%w: %w", ErrNoCredits, err)
	case errors.Is(err, ledger.ErrNotFound):
		log.Warn("chat request from identity without a ledger account")
		m.deps.Metrics.LedgerOperation("decrement", "not_found")
		return models.LedgerEntry{}, fmt.Errorf("%w: %w", ErrNoCredits, err)
	case err != nil:
		log.Error("credit check failed", zap.Error(err))
		m.deps.Audit.LogError(reference, identity, "decrement", err)
		m.deps.Metrics.LedgerOperation("decrement", "error")
		return models.LedgerEntry{}, fmt.Errorf("admit chat turn: %w", err)
	}

	m.deps.Audit.LogDebit(reference, identity, m.cost, entry.Balance)
	m.deps.Metrics.LedgerOperation("decrement", "ok")
	return entry, nil
}

// Refund returns the cost of a turn the completion API never started.
func (m *Meter) Refund(ctx context.Context, identity string) error {
	reference := middleware.GetReqID(ctx)

	entry, err := m.deps.Store.Increment(ctx, identity, m.cost)
	if err != nil {
		m.deps.Log.Error("refund failed", zap.String("identity", identity), zap.String("request_id", reference), zap.Error(err))
		m.deps.Audit.LogError(reference, identity, "refund", err)
		m.deps.Metrics.LedgerOperation("refund", "error")
		return fmt.Errorf("refund chat turn: %w", err)
	}

	m.deps.Audit.LogRefund(reference, identity, m.cost, entry.Balance)
	m.deps.Metrics.LedgerOperation("refund", "ok")
	return nil
}
