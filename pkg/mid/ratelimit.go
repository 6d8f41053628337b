package mid

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitOpts configures per-client rate limiting.
type RateLimitOpts struct {
	RPS   float64
	Burst int
	// TTL controls how long an idle client's limiter is kept.
	TTL time.Duration
}

// DefaultRateLimitOpts allows a steady 5 req/s per client with short bursts.
func DefaultRateLimitOpts() RateLimitOpts {
	return RateLimitOpts{RPS: 5, Burst: 10, TTL: 10 * time.Minute}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns middleware that throttles requests per client IP and
// responds 429 when the bucket is empty.
func RateLimit(opts RateLimitOpts) Middleware {
	if opts.RPS <= 0 {
		opts = DefaultRateLimitOpts()
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.RPS) + 1
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*clientLimiter)
	)

	get := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		cl, ok := clients[ip]
		if !ok {
			cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		if len(clients) > 1000 {
			for k, v := range clients {
				if now.Sub(v.lastSeen) > opts.TTL {
					delete(clients, k)
				}
			}
		}
		return cl.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !get(clientIP(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop so limits hold behind a
// proxy, falling back to the connection address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
