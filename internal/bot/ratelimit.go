package bot

import (
	"context"

	"golang.org/x/time/rate"
)

const (
	defaultRateBurst     = 5
	defaultRatePerMinute = 30.0
)

// Limiter throttles model calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewRateLimiter returns a token bucket that refills ratePerMinute tokens a
// minute and holds at most burst.
func NewRateLimiter(burst int, ratePerMinute float64) *rate.Limiter {
	if burst <= 0 {
		burst = defaultRateBurst
	}
	if ratePerMinute <= 0 {
		ratePerMinute = defaultRatePerMinute
	}
	return rate.NewLimiter(rate.Limit(ratePerMinute/60.0), burst)
}
