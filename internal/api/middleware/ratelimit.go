package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"dashguard/internal/config"
	"dashguard/internal/infrastructure/cache"
	"dashguard/pkg/logger"
)

// RateLimiter returns middleware that implements per-client rate limiting in Redis
func RateLimiter(c *cache.RedisCache, cfg config.RateLimitConfig, sessionHeader string, log *logger.Logger) func(next http.Handler) http.Handler {
	log = log.WithComponent("ratelimit")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip rate limiting for OPTIONS
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			clientID := getClientID(r, sessionHeader)

			allowed, remaining, resetTime, err := c.CheckRateLimit(
				r.Context(),
				clientID,
				int64(cfg.RequestsPerMinute),
				time.Minute,
			)
			if err != nil {
				// On error, allow request but log
				log.Warn().Err(err).Msg("rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !allowed {
				w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(resetTime).Seconds()), 10))
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientID keys on the session header when present, else on the client address.
// The session blob is hashed so tokens never reach Redis.
func getClientID(r *http.Request, sessionHeader string) string {
	if sessionHeader != "" {
		if raw := r.Header.Get(sessionHeader); raw != "" {
			sum := sha256.Sum256([]byte(raw))
			return "session:" + hex.EncodeToString(sum[:8])
		}
	}

	// RealIP middleware has already resolved forwarded headers
	return fmt.Sprintf("ip:%s", r.RemoteAddr)
}
