// Package resilience provides the reliability primitives the hybrid
// storage manager and the refresh-ahead scheduler lean on when talking
// to remote cache tiers.
//
// # Ecosystem Position
//
// resilience sits between tier coordination and remote store I/O:
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                      Remote Tier Call Flow                      │
//	├─────────────────────────────────────────────────────────────────┤
//	│                                                                 │
//	│   hybrid              resilience              Remote            │
//	│   ┌────────┐        ┌────────────┐          ┌─────────┐        │
//	│   │ Tier   │───────▶│ ┌────────┐ │─────────▶│  L2/L3  │        │
//	│   │ Read/  │        │ │ Retry  │ │          │  Store  │        │
//	│   │ Write  │        │ ├────────┤ │          └─────────┘        │
//	│   └────────┘        │ │Timeout │ │                              │
//	│                     │ ├────────┤ │                              │
//	│   refresh           │ │Bulkhead│ │                              │
//	│   ┌────────┐        │ ├────────┤ │                              │
//	│   │Rebuild │───────▶│ │RateLim │ │                              │
//	│   └────────┘        │ └────────┘ │                              │
//	│                     └────────────┘                              │
//	│                                                                 │
//	└─────────────────────────────────────────────────────────────────┘
//
// Circuit breaking for the remote tiers is handled by
// github.com/sony/gobreaker inside the hybrid manager, so this package
// carries no breaker of its own.
//
// # Patterns
//
//   - [Retry]: Retries failed operations with configurable backoff
//     (exponential, linear, constant) and optional jitter. The hybrid
//     manager builds one per remote tier from its retry configuration.
//   - [Bulkhead]: Limits concurrent operations to prevent resource
//     exhaustion. One shared instance bounds the write-behind workers
//     and the refresh-ahead rebuilds together.
//   - [RateLimiter]: Token-bucket rate limiting backed by
//     golang.org/x/time/rate. Caps refresh-ahead trigger scheduling.
//   - [Timeout]: Per-call deadlines for tier operations; on timeout the
//     tier is treated as missing for reads and failed for writes.
//
// # Quick Start
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 100 * time.Millisecond,
//	    MaxDelay:     2 * time.Second,
//	    Strategy:     resilience.BackoffExponential,
//	})
//
//	err := retry.Execute(ctx, func(ctx context.Context) error {
//	    return provider.Set(ctx, key, value, ttl, tags)
//	})
//
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 10})
//	if err := bh.Acquire(ctx); err == nil {
//	    defer bh.Release()
//	    // bounded work
//	}
//
// # Thread Safety
//
// All patterns are safe for concurrent use:
//
//   - [Retry]: Execute() is safe; configuration is immutable after creation
//   - [Bulkhead]: Acquire()/Release()/Execute() are safe; Metrics() is atomic
//   - [RateLimiter]: Allow(), Wait(), and Execute() are safe
//   - [Timeout]: Execute() is safe; each call gets its own deadline
//
// # Error Handling
//
// Sentinel errors (use errors.Is for checking):
//
//   - [ErrMaxRetriesExceeded]: declared for callers; [Retry.Execute] does
//     not return it
//   - [ErrRateLimitExceeded]: Rate limit hit and WaitOnLimit disabled (or wait capped out)
//   - [ErrBulkheadFull]: Bulkhead at capacity and MaxWait exceeded
//   - [ErrTimeout]: Operation exceeded its per-call deadline
//
// Operation errors are returned unwrapped: once every attempt has failed,
// Retry.Execute returns the last attempt's error as is:
//
//	err := retry.Execute(ctx, operation)
//	if errors.Is(err, errTransient) {
//	    // All attempts failed; err is the last attempt's error
//	}
//
// # Callbacks
//
// Patterns support observability callbacks:
//
//   - RetryConfig.OnRetry: Called before each retry with attempt, error, delay
//
// Callbacks run synchronously; keep them fast and non-blocking.
package resilience
