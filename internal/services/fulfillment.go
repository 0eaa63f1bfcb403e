package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/genfoo/backend/internal/ledger"
	"github.com/genfoo/backend/internal/models"
	"github.com/genfoo/backend/internal/payments"
	"go.uber.org/zap"
)

// Fulfiller credits purchases confirmed by the payment provider.
type Fulfiller struct {
	deps     Deps
	verifier *payments.WebhookVerifier
	catalog  *Catalog
}

func NewFulfiller(deps Deps, verifier *payments.WebhookVerifier, catalog *Catalog) *Fulfiller {
	return &Fulfiller{
		deps:     deps.withDefaults("fulfillment"),
		verifier: verifier,
		catalog:  catalog,
	}
}

// HandleWebhook verifies payload against signature before anything in it
// is trusted, then fulfils the purchase it describes.
func (f *Fulfiller) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := f.verifier.Verify(payload, signature); err != nil {
		f.deps.Metrics.WebhookEvent("payments", "rejected")
		f.deps.Log.Warn("payment webhook rejected", zap.Error(err))
		return err
	}

	evt, err := payments.ParseEvent(payload)
	if errors.Is(err, payments.ErrEventIgnored) {
		f.deps.Log.Debug("ignoring payment event", zap.String("event_id", evt.EventID), zap.String("event_type", evt.EventType))
		f.deps.Metrics.WebhookEvent("payments", "ignored")
		return nil
	}
	if err != nil {
		f.deps.Metrics.WebhookEvent("payments", "malformed")
		return err
	}

	return f.Fulfill(ctx, evt)
}

// Fulfill applies one purchase. Each event id is credited at most once.
func (f *Fulfiller) Fulfill(ctx context.Context, evt models.PurchaseEvent) error {
	log := f.deps.Log.With(
		zap.String("event_id", evt.EventID),
		zap.String("session_id", evt.SessionID),
		zap.String("identity", evt.Identity),
		zap.String("product_id", evt.ProductID),
	)

	if !evt.Settled() {
		// checkout.session.async_payment_succeeded follows once funds clear.
		log.Info("checkout completed without settled payment", zap.String("payment_status", evt.PaymentStatus))
		f.deps.Metrics.WebhookEvent("payments", "unsettled")
		return nil
	}

	if evt.Identity == "" {
		log.Error("checkout session has no userId metadata")
		f.deps.Metrics.WebhookEvent("payments", "missing_identity")
		return ErrMissingIdentity
	}

	credits, err := f.catalog.Credits(evt.ProductID)
	if err != nil {
		log.Error("checkout session references an unknown product")
		f.deps.Metrics.WebhookEvent("payments", "unknown_product")
		return err
	}

	entry, err := f.deps.Store.ApplyPurchase(ctx, evt.EventID, evt.Identity, evt.ProductID, credits)
	switch {
	case errors.Is(err, ledger.ErrDuplicateEvent):
		log.Info("payment event already applied")
		f.deps.Metrics.LedgerOperation("purchase", "duplicate")
		f.deps.Metrics.WebhookEvent("payments", "duplicate")
		return nil
	case errors.Is(err, ledger.ErrNotFound):
		log.Warn("no ledger account for purchase; identity was never provisioned", zap.Int64("credits", credits))
		f.deps.Metrics.LedgerOperation("purchase", "not_found")
		f.deps.Metrics.WebhookEvent("payments", "not_found")
		return fmt.Errorf("fulfil %s: %w", evt.EventID, err)
	case err != nil:
		f.deps.Audit.LogError(evt.EventID, evt.Identity, "purchase", err)
		f.deps.Metrics.LedgerOperation("purchase", "error")
		f.deps.Metrics.WebhookEvent("payments", "error")
		return fmt.Errorf("fulfil %s: %w", evt.EventID, err)
	}

	f.deps.Audit.LogCredit(evt.EventID, evt.Identity, evt.ProductID, credits, entry.Balance)
	f.deps.Metrics.LedgerOperation("purchase", "ok")
	f.deps.Metrics.CreditsGranted("purchase", credits)
	f.deps.Metrics.WebhookEvent("payments", "ok")
	log.Info("purchase credited", zap.Int64("credits", credits), zap.Int64("balance", entry.Balance))
	return nil
}
