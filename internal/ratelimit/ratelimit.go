// Package ratelimit wraps golang.org/x/time/rate for client-side API
// quotas (the swap aggregator caps requests per second per key).
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token-bucket limiter.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained with the given
// burst. Burst below 1 is raised to 1.
func New(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a token is available or the context ends.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}

// SetLimit updates the sustained rate.
func (l *Limiter) SetLimit(requestsPerSecond float64) {
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
}
