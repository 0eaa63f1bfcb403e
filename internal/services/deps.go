package services

import (
	"github.com/genfoo/backend/internal/audit"
	"github.com/genfoo/backend/internal/ledger"
	"github.com/genfoo/backend/internal/metrics"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by the ledger services. Redis and
// Metrics may be nil.
type Deps struct {
	Store   ledger.Store
	Redis   *redis.Client
	Log     *zap.Logger
	Audit   *audit.Logger
	Metrics *metrics.Metrics
}

func (d Deps) withDefaults(name string) Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	d.Log = d.Log.Named(name)
	if d.Audit == nil {
		d.Audit = audit.NewLogger(d.Log)
	}
	return d
}
