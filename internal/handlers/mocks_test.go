package handlers

import (
	"context"
	"net/http"

	"github.com/genfoo/backend/internal/identity"
	"github.com/genfoo/backend/internal/models"
	"github.com/genfoo/backend/internal/payments"
	"github.com/stretchr/testify/mock"
)

type MockGate struct {
	mock.Mock
}

func (m *MockGate) Admit(ctx context.Context, identity string) (models.LedgerEntry, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

func (m *MockGate) Refund(ctx context.Context, identity string) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

type MockStreamer struct {
	mock.Mock
}

func (m *MockStreamer) Stream(ctx context.Context, model string, messages []models.ChatMessage, w http.ResponseWriter) (int64, error) {
	args := m.Called(ctx, model, messages, w)
	return int64(args.Int(0)), args.Error(1)
}

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) CreateSession(ctx context.Context, params payments.CheckoutParams) (payments.CheckoutSession, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(payments.CheckoutSession), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateIfAbsent(ctx context.Context, identity, email string, startingBalance int64) (bool, error) {
	args := m.Called(ctx, identity, email, startingBalance)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) TryDecrement(ctx context.Context, identity string, amount int64) (models.LedgerEntry, error) {
	args := m.Called(ctx, identity, amount)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

func (m *MockStore) Increment(ctx context.Context, identity string, amount int64) (models.LedgerEntry, error) {
	args := m.Called(ctx, identity, amount)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

func (m *MockStore) Read(ctx context.Context, identity string) (models.LedgerEntry, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

func (m *MockStore) ApplyPurchase(ctx context.Context, eventID, identity, productID string, amount int64) (models.LedgerEntry, error) {
	args := m.Called(ctx, eventID, identity, productID, amount)
	return args.Get(0).(models.LedgerEntry), args.Error(1)
}

type MockIdentityHook struct {
	mock.Mock
}

func (m *MockIdentityHook) HandleWebhook(ctx context.Context, payload []byte, headers identity.Headers) error {
	return m.Called(ctx, payload, headers).Error(0)
}

type MockPaymentHook struct {
	mock.Mock
}

func (m *MockPaymentHook) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	return m.Called(ctx, payload, signature).Error(0)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }
