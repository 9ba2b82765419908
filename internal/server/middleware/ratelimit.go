package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tradelane/bolindexer/internal/domain"
)

// RateLimit throttles each client IP to limit requests per window through the
// Redis sliding-window limiter. The endpoints only read indexed state, so a
// limiter outage fails open; a burst of reads is cheaper than a public API
// that 500s whenever Redis restarts.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ratelimit:api:" + clientAddr(r)

			allowed, err := limiter.Allow(context.Background(), key, limit, window)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr resolves the caller's IP. The API usually sits behind a reverse
// proxy, so X-Forwarded-For (first hop) and X-Real-IP win over RemoteAddr.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
