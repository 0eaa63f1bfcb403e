package services

import (
	"context"
	"fmt"
	"time"

	"github.com/genfoo/backend/internal/identity"
	"github.com/genfoo/backend/internal/models"
	"go.uber.org/zap"
)

const identityDedupPrefix = "genfoo:webhook:identity:"

// Provisioner opens a ledger row for every new identity.
type Provisioner struct {
	deps            Deps
	verifier        *identity.Verifier
	startingBalance int64
	dedupTTL        time.Duration
}

func NewProvisioner(deps Deps, verifier *identity.Verifier, startingBalance int64, dedupTTL time.Duration) *Provisioner {
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	return &Provisioner{
		deps:            deps.withDefaults("provisioner"),
		verifier:        verifier,
		startingBalance: startingBalance,
		dedupTTL:        dedupTTL,
	}
}

// HandleWebhook verifies and applies one identity-provider delivery.
func (p *Provisioner) HandleWebhook(ctx context.Context, payload []byte, headers identity.Headers) error {
	if err := p.verifier.Verify(payload, headers); err != nil {
		p.deps.Metrics.WebhookEvent("identity", "rejected")
		p.deps.Log.Warn("identity webhook rejected", zap.String("svix_id", headers.ID), zap.Error(err))
		return err
	}

	evt, err := identity.ParseEvent(headers.ID, payload)
	if err != nil {
		p.deps.Metrics.WebhookEvent("identity", "malformed")
		return err
	}

	_, err = p.Provision(ctx, evt)
	return err
}

// Provision creates the ledger row for evt.Identity with the starting
// balance. Repeated deliveries succeed without touching the balance.
func (p *Provisioner) Provision(ctx context.Context, evt models.IdentityCreatedEvent) (bool, error) {
	log := p.deps.Log.With(zap.String("svix_id", evt.MessageID), zap.String("event_type", evt.EventType))

	if evt.EventType != models.IdentityEventUserCreated {
		log.Debug("ignoring identity event")
		p.deps.Metrics.WebhookEvent("identity", "ignored")
		return false, nil
	}
	if evt.Identity == "" {
		log.Warn("user.created event without user id")
		p.deps.Metrics.WebhookEvent("identity", "malformed")
		return false, fmt.Errorf("%w: missing user id", ErrMalformedEvent)
	}
	log = log.With(zap.String("identity", evt.Identity))

	if p.alreadyDelivered(ctx, evt.MessageID, log) {
		log.Info("identity event already delivered")
		p.deps.Metrics.WebhookEvent("identity", "duplicate")
		return false, nil
	}

	created, err := p.deps.Store.CreateIfAbsent(ctx, evt.Identity, evt.Email, p.startingBalance)
	if err != nil {
		p.deps.Audit.LogError(evt.MessageID, evt.Identity, "provision", err)
		p.deps.Metrics.LedgerOperation("create", "error")
		p.deps.Metrics.WebhookEvent("identity", "error")
		return false, fmt.Errorf("provision %s: %w", evt.Identity, err)
	}
	p.markDelivered(ctx, evt.MessageID, log)

	if !created {
		log.Info("ledger account already exists")
		p.deps.Metrics.LedgerOperation("create", "exists")
		p.deps.Metrics.WebhookEvent("identity", "duplicate")
		return false, nil
	}

	p.deps.Audit.LogProvisioned(evt.MessageID, evt.Identity, p.startingBalance)
	p.deps.Metrics.LedgerOperation("create", "ok")
	p.deps.Metrics.CreditsGranted("signup", p.startingBalance)
	p.deps.Metrics.WebhookEvent("identity", "ok")
	log.Info("ledger account provisioned", zap.Int64("balance", p.startingBalance))
	return true, nil
}

// alreadyDelivered reports whether messageID was already applied within
// the dedup window. Redis problems never block provisioning; the database
// insert stays authoritative.
func (p *Provisioner) alreadyDelivered(ctx context.Context, messageID string, log *zap.Logger) bool {
	if p.deps.Redis == nil || messageID == "" {
		return false
	}
	n, err := p.deps.Redis.Exists(ctx, identityDedupPrefix+messageID).Result()
	if err != nil {
		log.Warn("identity dedup check failed", zap.Error(err))
		return false
	}
	return n > 0
}

// markDelivered runs only after the store accepted the event, so a
// delivery that failed midway is never remembered as handled.
func (p *Provisioner) markDelivered(ctx context.Context, messageID string, log *zap.Logger) {
	if p.deps.Redis == nil || messageID == "" {
		return
	}
	if err := p.deps.Redis.Set(context.WithoutCancel(ctx), identityDedupPrefix+messageID, 1, p.dedupTTL).Err(); err != nil {
		log.Warn("identity dedup mark failed", zap.Error(err))
	}
}
