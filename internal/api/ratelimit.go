package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit admits requests through limiter and answers 429 with a
// Retry-After hint once it is exhausted. A nil limiter admits everything.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Reserve()
			if !res.OK() {
				httpError(w, http.StatusTooManyRequests, "rate_limit_error", "request exceeds rate limit burst")
				return
			}
			if d := res.Delay(); d > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
				httpError(w, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded, retry in %s", d.Round(time.Millisecond))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewLimiter returns a limiter for perSecond requests with the given burst,
// or nil when perSecond <= 0.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
