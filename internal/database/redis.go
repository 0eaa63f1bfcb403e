package database

import (
	"context"
	"fmt"
	"time"

	"github.com/genfoo/backend/internal/config"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// NewRedis returns a connected client, or nil when Redis is disabled.
// An enabled but unreachable Redis is a startup error.
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if log != nil {
		log.Info("redis connection established", zap.String("addr", cfg.Addr))
	}
	return rdb, nil
}
