package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter throttles requests per client address.
type IPLimiter struct {
	buckets *keyedLimiters[string]
}

// NewIPLimiter allows rps requests per second per address with the given
// burst. Addresses are forgotten once their bucket would have refilled.
func NewIPLimiter(rps float64, burst int) *IPLimiter {
	if burst < 1 {
		burst = 1
	}
	var idle time.Duration
	if rps > 0 {
		idle = time.Duration(float64(burst) / rps * float64(time.Second))
	}
	return &IPLimiter{
		buckets: newKeyedLimiters[string](rate.Limit(rps), burst, idle),
	}
}

// Middleware rejects requests over the limit with 429. It keys on
// RemoteAddr, which chi's RealIP middleware has already resolved.
func (i *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !i.buckets.get(ip).Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
