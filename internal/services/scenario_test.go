package services

import (
	"context"
	"testing"
	"time"

	"github.com/genfoo/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_StartingBalanceCoversTwentyTurns(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	deps, _ := newObservedDeps(store)

	provisioner := NewProvisioner(deps, newIdentityVerifier(t), 20, time.Hour)
	meter := NewMeter(deps, 1)

	created, err := provisioner.Provision(ctx, userCreated("msg_1"))
	require.NoError(t, err)
	require.True(t, created)

	for turn := 1; turn <= 20; turn++ {
		_, err := meter.Admit(ctx, "user_1")
		require.NoError(t, err, "turn %d", turn)
	}

	_, err = meter.Admit(ctx, "user_1")
	assert.ErrorIs(t, err, ErrNoCredits)
	assert.Equal(t, 402, StatusFor(err))
}

func TestScenario_DuplicateSignupGrantsOnce(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	deps, _ := newObservedDeps(store)
	provisioner := NewProvisioner(deps, newIdentityVerifier(t), 20, time.Hour)

	_, err := provisioner.Provision(ctx, userCreated("msg_1"))
	require.NoError(t, err)
	_, err = provisioner.Provision(ctx, userCreated("msg_1"))
	require.NoError(t, err)

	entry, err := store.Read(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), entry.Balance)
}

func TestScenario_PurchaseCreditsOnce(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	deps, _ := newObservedDeps(store)

	_, err := store.CreateIfAbsent(ctx, "user_1", "", 5)
	require.NoError(t, err)

	verifier := newPaymentVerifier()
	fulfiller := NewFulfiller(deps, verifier, testCatalog)
	payload := checkoutPayload("evt_1", "user_1", "priceA", models.PaymentStatusPaid)

	for delivery := 0; delivery < 3; delivery++ {
		require.NoError(t, fulfiller.HandleWebhook(ctx, payload, verifier.SignatureFor(payload, time.Now())))
	}

	entry, err := store.Read(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1205), entry.Balance)
}

func TestScenario_UnknownProductLeavesBalance(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	deps, _ := newObservedDeps(store)

	_, err := store.CreateIfAbsent(ctx, "user_1", "", 5)
	require.NoError(t, err)

	verifier := newPaymentVerifier()
	payload := checkoutPayload("evt_2", "user_1", "priceUnknown", models.PaymentStatusPaid)
	err = NewFulfiller(deps, verifier, testCatalog).HandleWebhook(ctx, payload, verifier.SignatureFor(payload, time.Now()))
	assert.ErrorIs(t, err, ErrUnknownProduct)

	entry, err := store.Read(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), entry.Balance)
}

func TestScenario_PurchaseBeforeProvisioningIsRetried(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	deps, _ := newObservedDeps(store)

	verifier := newPaymentVerifier()
	fulfiller := NewFulfiller(deps, verifier, testCatalog)
	payload := checkoutPayload("evt_3", "user_1", "priceB", models.PaymentStatusPaid)

	err := fulfiller.HandleWebhook(ctx, payload, verifier.SignatureFor(payload, time.Now()))
	assert.Equal(t, 404, StatusFor(err))

	_, err = NewProvisioner(deps, newIdentityVerifier(t), 20, time.Hour).Provision(ctx, userCreated("msg_1"))
	require.NoError(t, err)

	require.NoError(t, fulfiller.HandleWebhook(ctx, payload, verifier.SignatureFor(payload, time.Now())))

	entry, err := store.Read(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(520), entry.Balance)
}
