package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/ratelimit"
)

// RateLimit applies a token bucket per authenticated user. It must run
// after Auth.
func RateLimit(pool *ratelimit.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID != uuid.Nil && !pool.Allow(userID.String()) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"Too many requests"}}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
