package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/genfoo/backend/internal/ledger"
	"github.com/genfoo/backend/internal/models"
	"github.com/genfoo/backend/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

var testCatalog = NewCatalog(map[string]int64{"priceA": 1200, "priceB": 500})

func paidPurchase() models.PurchaseEvent {
	return models.PurchaseEvent{
		EventID:       "evt_1",
		EventType:     models.PaymentEventCheckoutCompleted,
		SessionID:     "cs_1",
		Identity:      "user_1",
		ProductID:     "priceA",
		PaymentStatus: models.PaymentStatusPaid,
	}
}

func checkoutPayload(eventID, userID, priceID, status string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":"checkout.session.completed","data":{"object":{"id":"cs_1","payment_status":%q,"metadata":{"userId":%q,"priceId":%q}}}}`,
		eventID, status, userID, priceID))
}

func TestFulfiller_Fulfill(t *testing.T) {
	ctx := context.Background()

	t.Run("credits the catalog amount", func(t *testing.T) {
		store := new(MockStore)
		store.On("ApplyPurchase", ctx, "evt_1", "user_1", "priceA", int64(1200)).
			Return(models.LedgerEntry{Identity: "user_1", Balance: 1205}, nil)
		deps, _ := newObservedDeps(store)

		require.NoError(t, NewFulfiller(deps, newPaymentVerifier(), testCatalog).Fulfill(ctx, paidPurchase()))
		store.AssertExpectations(t)
	})

	t.Run("unknown product fails closed", func(t *testing.T) {
		store := new(MockStore)
		deps, _ := newObservedDeps(store)

		evt := paidPurchase()
		evt.ProductID = "priceZ"
		err := NewFulfiller(deps, newPaymentVerifier(), testCatalog).Fulfill(ctx, evt)
		assert.ErrorIs(t, err, ErrUnknownProduct)
		assert.Equal(t, 400, StatusFor(err))
		store.AssertNotCalled(t, "ApplyPurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing identity", func(t *testing.T) {
		store := new(MockStore)
		deps, logs := newObservedDeps(store)

		evt := paidPurchase()
		evt.Identity = ""
		err := NewFulfiller(deps, newPaymentVerifier(), testCatalog).Fulfill(ctx, evt)
		assert.ErrorIs(t, err, ErrMissingIdentity)
		assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
		store.AssertNotCalled(t, "ApplyPurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing ledger row is a warning and a 404", func(t *testing.T) {
		store := new(MockStore)
		store.On("ApplyPurchase", ctx, "evt_1", "user_1", "priceA", int64(1200)).
			Return(models.LedgerEntry{}, ledger.ErrNotFound)
		deps, logs := newObservedDeps(store)

		var err error
		assert.NotPanics(t, func() {
			err = NewFulfiller(deps, newPaymentVerifier(), testCatalog).Fulfill(ctx, paidPurchase())
		})
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		assert.Equal(t, 404, StatusFor(err))
		assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	})

	t.Run("replayed event is acknowledged", func(t *testing.T) {
		store := new(MockStore)
		store.On("ApplyPurchase", ctx, "evt_1", "user_1", "priceA", int64(1200)).
			Return(models.LedgerEntry{}, ledger.ErrDuplicateEvent)
		deps, _ := newObservedDeps(store)

		assert.NoError(t, NewFulfiller(deps, newPaymentVerifier(), testCatalog).Fulfill(ctx, paidPurchase()))
	})

	t.Run("store failure is retryable", func(t *testing.T) {
		store := new(MockStore)
		store.On("ApplyPurchase", ctx, "evt_1", "user_1", "priceA", int64(1200)).
			Return(models.LedgerEntry{}, errors.New("deadlock detected"))
		deps, _ := newObservedDeps(store)

		err := NewFulfiller(deps, newPaymentVerifier(), testCatalog).Fulfill(ctx, paidPurchase())
		assert.Equal(t, 500, StatusFor(err))
	})

	t.Run("unpaid session waits for async success", func(t *testing.T) {
		store := new(MockStore)
		deps, _ := newObservedDeps(store)

		evt := paidPurchase()
		evt.PaymentStatus = models.PaymentStatusUnpaid
		assert.NoError(t, NewFulfiller(deps, newPaymentVerifier(), testCatalog).Fulfill(ctx, evt))
		store.AssertNotCalled(t, "ApplyPurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestFulfiller_HandleWebhook(t *testing.T) {
	ctx := context.Background()
	verifier := newPaymentVerifier()

	t.Run("signed delivery is fulfilled", func(t *testing.T) {
		payload := checkoutPayload("evt_9", "user_1", "priceB", "paid")
		store := new(MockStore)
		store.On("ApplyPurchase", ctx, "evt_9", "user_1", "priceB", int64(500)).
			Return(models.LedgerEntry{Identity: "user_1", Balance: 505}, nil)
		deps, _ := newObservedDeps(store)

		err := NewFulfiller(deps, verifier, testCatalog).HandleWebhook(ctx, payload, verifier.SignatureFor(payload, time.Now()))
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("unsigned delivery is never processed", func(t *testing.T) {
		payload := checkoutPayload("evt_9", "user_1", "priceB", "paid")
		store := new(MockStore)
		deps, _ := newObservedDeps(store)

		forged := payments.NewWebhookVerifier("whsec_attacker", time.Minute).SignatureFor(payload, time.Now())
		err := NewFulfiller(deps, verifier, testCatalog).HandleWebhook(ctx, payload, forged)
		assert.ErrorIs(t, err, payments.ErrInvalidSignature)
		assert.Equal(t, 400, StatusFor(err))
		store.AssertNotCalled(t, "ApplyPurchase", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("irrelevant event types are acknowledged", func(t *testing.T) {
		payload := []byte(`{"id":"evt_x","type":"customer.created","data":{"object":{}}}`)
		deps, _ := newObservedDeps(new(MockStore))

		err := NewFulfiller(deps, verifier, testCatalog).HandleWebhook(ctx, payload, verifier.SignatureFor(payload, time.Now()))
		assert.NoError(t, err)
	})
}
