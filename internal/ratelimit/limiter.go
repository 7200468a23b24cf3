// Package ratelimit provides a Redis-backed fixed-window rate limiter for
// the HTTP surface, keyed by client address. It exists mainly to slow
// down login-flow abuse; it fails open when Redis is unavailable so the
// cache fallback mode never locks users out.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/callezenwaka/authenticate/internal/common/logging"
)

// Config controls the limiter
type Config struct {
	DefaultLimit  int           `json:"default_limit"`
	DefaultWindow time.Duration `json:"default_window"`
	Enabled       bool          `json:"enabled"`
}

// Result describes one rate limit decision
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// Limiter counts requests per client per fixed window in Redis
type Limiter struct {
	rdb    *redis.Client
	config *Config
	logger logging.Logger
}

// NewLimiter creates a limiter on the given Redis client
func NewLimiter(rdb *redis.Client, config *Config, logger logging.Logger) *Limiter {
	if config == nil {
		config = &Config{
			DefaultLimit:  100,
			DefaultWindow: time.Minute,
			Enabled:       true,
		}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Limiter{rdb: rdb, config: config, logger: logger}
}

// Allow records one request for the key and reports whether it is within
// the limit. Redis trouble allows the request: availability wins here.
func (l *Limiter) Allow(ctx context.Context, key string) Result {
	window := time.Now().Unix() / int64(l.config.DefaultWindow.Seconds())
	counterKey := fmt.Sprintf("ratelimit:%s:%d", key, window)
	resetTime := time.Unix((window+1)*int64(l.config.DefaultWindow.Seconds()), 0)

	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, counterKey)
	pipe.Expire(ctx, counterKey, l.config.DefaultWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("Rate limit check failed, allowing request",
			logging.Field{Key: "key", Value: key},
			logging.Field{Key: "error", Value: err.Error()})
		return Result{Allowed: true, Limit: l.config.DefaultLimit, Remaining: l.config.DefaultLimit, ResetTime: resetTime}
	}

	used := int(count.Val())
	remaining := l.config.DefaultLimit - used
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   used <= l.config.DefaultLimit,
		Limit:     l.config.DefaultLimit,
		Remaining: remaining,
		ResetTime: resetTime,
	}
}

// Middleware enforces the limit per client address, answering 429 with
// the standard rate limit headers once it is exceeded
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		result := l.Allow(r.Context(), clientKey(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

		if !result.Allowed {
			l.logger.Warn("Rate limit exceeded",
				logging.Field{Key: "client", Value: clientKey(r)},
				logging.Field{Key: "path", Value: r.URL.Path})
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller by address, without the ephemeral port
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
