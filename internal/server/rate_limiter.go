package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newConnLimiter guards a single connection against frame floods: burst
// frames at once, refilled at burst per interval.
func newConnLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst)
}
