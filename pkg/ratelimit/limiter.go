package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Limiter paces outbound requests across all concurrent fetches
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
}

// TokenBucket is a Limiter backed by golang.org/x/time/rate
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket allows perSecond requests per second with the given burst
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = max(1, int(math.Ceil(perSecond)))
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Unlimited never blocks
type Unlimited struct{}

// Allow always returns true
func (Unlimited) Allow() bool { return true }

// Wait only reports context cancellation
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// New returns a TokenBucket for a positive rate and Unlimited otherwise
func New(perSecond float64) Limiter {
	if perSecond <= 0 {
		return Unlimited{}
	}
	return NewTokenBucket(perSecond, 0)
}
