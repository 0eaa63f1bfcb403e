package audit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	audit := NewLogger(zap.New(core))

	audit.LogCredit("evt_1", "user_1", "priceA", 1200, 1205)
	audit.LogDebit("req_1", "user_1", 1, 1204)
	audit.LogError("evt_2", "user_2", "credit", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 3)

	credit := entries[0]
	assert.Equal(t, "audit", credit.LoggerName)
	fields := credit.ContextMap()
	assert.Equal(t, EventCredit, fields["event_type"])
	assert.Equal(t, "evt_1", fields["reference"])
	assert.Equal(t, int64(1200), fields["amount"])
	assert.Equal(t, int64(1205), fields["balance"])
	assert.Equal(t, "priceA", fields["product_id"])

	assert.Equal(t, EventDebit, entries[1].ContextMap()["event_type"])

	failure := entries[2]
	assert.Equal(t, zapcore.WarnLevel, failure.Level)
	assert.Equal(t, "FAILED", failure.ContextMap()["status"])
	assert.Equal(t, "boom", failure.ContextMap()["error"])
}

func TestNewLoggerWithoutBase(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogger(nil).LogRefund("req_1", "user_1", 1, 5)
	})
}
