package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Fixed-window counter: first increment in a window sets the expiry.
const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

// RateLimiter is a redis-backed fixed-window limiter keyed by client IP
// and route, protecting the public endpoints from form-spam loops.
type RateLimiter struct {
	client *redis.Client
	script *redis.Script
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		script: redis.NewScript(rateLimitScript),
		limit:  limit,
		window: window,
	}
}

// Middleware enforces the limit, answering 429 when exceeded. Redis
// failures fail open so an unavailable limiter cannot take down signups.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("ratelimit:%s:%s", clientIP(r), r.URL.Path)
		windowSecs := int(rl.window.Seconds())

		count, err := rl.script.Run(r.Context(), rl.client, []string{key}, windowSecs).Int()
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing request", "err", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if count > rl.limit {
			httputil.Error(w, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP keys the window on the address alone. RemoteAddr carries the
// ephemeral port for direct connections, and a per-connection window would
// never fire.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP middleware already rewrote it to a bare address.
		return r.RemoteAddr
	}
	return host
}
