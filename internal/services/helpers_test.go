package services

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/genfoo/backend/internal/config"
	"github.com/genfoo/backend/internal/database"
	"github.com/genfoo/backend/internal/identity"
	"github.com/genfoo/backend/internal/ledger"
	"github.com/genfoo/backend/internal/payments"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const paymentSecret = "whsec_payment_test"

var identitySecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("identity-test-key"))

func newObservedDeps(store ledger.Store) (Deps, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return Deps{Store: store, Log: zap.New(core)}, logs
}

func newIdentityVerifier(t *testing.T) *identity.Verifier {
	t.Helper()
	v, err := identity.NewVerifier(identitySecret, 5*time.Minute)
	require.NoError(t, err)
	return v
}

func newPaymentVerifier() *payments.WebhookVerifier {
	return payments.NewWebhookVerifier(paymentSecret, 5*time.Minute)
}

func newSQLiteStore(t *testing.T) *ledger.SQLStore {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, config.DriverSQLite))
	return ledger.NewSQLStore(db, config.DriverSQLite)
}
