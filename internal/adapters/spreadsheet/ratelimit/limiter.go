// Package ratelimit throttles outbound calls to the spreadsheet API to
// stay under its published per-minute quota (spec.md §4.2/§6), using a
// token-bucket limiter.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate with the construction spec.md's
// config surface needs: a steady rate expressed as requests per
// interval plus a burst allowance.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing up to requestsPerMinute sustained,
// with burst concurrent requests permitted immediately.
func New(requestsPerMinute int, burst int) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	perSecond := rate.Limit(float64(requestsPerMinute) / 60.0)
	return &Limiter{limiter: rate.NewLimiter(perSecond, burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
