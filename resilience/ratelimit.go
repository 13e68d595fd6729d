package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of operations allowed per second.
	// Default: 100
	Rate float64

	// Burst is the maximum burst size.
	// Default: 10
	Burst int

	// WaitOnLimit waits for a token instead of returning error.
	// Default: false
	WaitOnLimit bool

	// MaxWait is the maximum time to wait for a token.
	// Default: 1 second
	MaxWait time.Duration
}

// RateLimiter is a token-bucket rate limiter backed by
// golang.org/x/time/rate.
type RateLimiter struct {
	config RateLimiterConfig

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}

	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

func (rl *RateLimiter) lim() *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limiter
}

// Allow checks if a request is allowed under the rate limit.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN checks if n requests are allowed.
func (rl *RateLimiter) AllowN(n int) bool {
	return rl.lim().AllowN(time.Now(), n)
}

// Wait blocks until a token is available or context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are available, up to MaxWait. Returns the
// caller's context error on cancellation, ErrRateLimitExceeded when no
// token arrived within MaxWait.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	// Check context first
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r := rl.lim().ReserveN(time.Now(), n)
	if !r.OK() {
		return ErrRateLimitExceeded
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if delay > rl.config.MaxWait {
		// Token won't arrive in time; give the tokens back and block
		// for the capped wait so cancellation can still take precedence.
		r.Cancel()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.config.MaxWait):
			return ErrRateLimitExceeded
		}
	}

	select {
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// Execute runs the operation if allowed by rate limit.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.WaitOnLimit {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
	} else if !rl.Allow() {
		return ErrRateLimitExceeded
	}

	return op(ctx)
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	return rl.lim().Tokens()
}

// Reset resets the rate limiter to full capacity.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter = rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst)
}
