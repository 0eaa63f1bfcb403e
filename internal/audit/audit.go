package audit

import (
	"go.uber.org/zap"
)

// Event types written to the audit trail.
const (
	EventProvisioned = "ACCOUNT_PROVISIONED"
	EventCredit      = "CREDIT"
	EventDebit       = "DEBIT"
	EventRefund      = "REFUND"
	EventError       = "ERROR"
)

// Logger writes one structured line per balance mutation. Entries share
// the "audit" logger name so they can be routed separately.
type Logger struct {
	log *zap.Logger
}

func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("audit")}
}

func (a *Logger) LogProvisioned(reference, identity string, startingBalance int64) {
	a.write(EventProvisioned, reference, identity, startingBalance, startingBalance, "SUCCESS")
}

// LogCredit records a purchase credited to identity. reference is the
// payment event id.
func (a *Logger) LogCredit(reference, identity, productID string, amount, balance int64) {
	a.write(EventCredit, reference, identity, amount, balance, "SUCCESS", zap.String("product_id", productID))
}

func (a *Logger) LogDebit(reference, identity string, amount, balance int64) {
	a.write(EventDebit, reference, identity, amount, balance, "SUCCESS")
}

func (a *Logger) LogRefund(reference, identity string, amount, balance int64) {
	a.write(EventRefund, reference, identity, amount, balance, "SUCCESS")
}

func (a *Logger) LogError(reference, identity, operation string, err error) {
	a.log.Warn("audit",
		zap.String("event_type", EventError),
		zap.String("reference", reference),
		zap.String("identity", identity),
		zap.String("operation", operation),
		zap.String("status", "FAILED"),
		zap.Error(err),
	)
}

func (a *Logger) write(eventType, reference, identity string, amount, balance int64, status string, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("event_type", eventType),
		zap.String("reference", reference),
		zap.String("identity", identity),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
		zap.String("status", status),
	}, extra...)
	a.log.Info("audit", fields...)
}
