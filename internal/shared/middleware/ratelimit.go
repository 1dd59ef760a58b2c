package middleware

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"flint/internal/infrastructure/cache"
)

// RateLimit caps requests per client per window using the injected cache
// store, so the counter survives across instances when backed by Redis.
// Authenticated requests are keyed by user ID, anonymous ones by IP.
func RateLimit(store cache.Store, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			count, err := store.Increment(r.Context(), "ratelimit:"+key, window)
			if err != nil {
				// Rate limiting is best-effort; never block traffic on a
				// cache outage.
				log.Printf("Rate limiter unavailable: %v", err)
				next.ServeHTTP(w, r)
				return
			}

			if count > int64(limit) {
				retryAfter := int(window.Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":{"code":"RATE_LIMITED","message":"too many requests, slow down","retryAfter":%d}}`, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if userID, ok := r.Context().Value(UserIDKey).(int64); ok {
		return fmt.Sprintf("user:%d", userID)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
