package services

import (
	"context"

	"github.com/genfoo/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

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
