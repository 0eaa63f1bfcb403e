package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/genfoo/backend/internal/services"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RateLimiter caps requests per identity in fixed one-minute windows
// counted in Redis. Without a Redis client it allows everything.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
	prefix string
	log    *zap.Logger
	now    func() time.Time
}

func NewRateLimiter(rdb *redis.Client, perMinute int, prefix string, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		rdb:    rdb,
		limit:  int64(perMinute),
		window: time.Minute,
		prefix: prefix,
		log:    log.Named("ratelimit"),
		now:    time.Now,
	}
}

func (rl *RateLimiter) key(identity string, now time.Time) string {
	return fmt.Sprintf("genfoo:ratelimit:%s:%s:%d", rl.prefix, identity, now.Unix()/int64(rl.window.Seconds()))
}

// Middleware must run after authentication.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if rl.rdb == nil || rl.limit <= 0 || !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		key := rl.key(identity, now)
		count, err := rl.rdb.Incr(r.Context(), key).Result()
		if err != nil {
			// Counting is best effort; the ledger still meters every turn.
			rl.log.Warn("rate limit check failed", zap.String("identity", identity), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			if err := rl.rdb.Expire(r.Context(), key, rl.window).Err(); err != nil {
				rl.log.Warn("rate limit expiry failed", zap.String("key", key), zap.Error(err))
			}
		}

		if count > rl.limit {
			windowEnd := now.Truncate(rl.window).Add(rl.window)
			w.Header().Set("Retry-After", strconv.Itoa(int(windowEnd.Sub(now).Seconds())+1))
			services.WriteError(w, services.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
