// Package cache is the public entry point of the method-result cache
// runtime: a Manager facade orchestrating key generation, policy
// resolution, hybrid L1/L2/L3 storage, stampede protection, refresh-ahead
// scheduling, and tag-based invalidation.
//
// # Ecosystem Position
//
// cache sits between a caller's method invocation and the computation (or
// fetch) that produces its result, intercepting repeat calls:
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                       Cached Read Flow                           │
//	├──────────────────────────────────────────────────────────────────┤
//	│                                                                  │
//	│   caller              cache.Manager            collaborators     │
//	│   ┌────────┐        ┌──────────────┐        ┌───────────────┐   │
//	│   │ Method │───────▶│ GetOrCreateBy│───────▶│policy.Registry│   │
//	│   │  Call  │        │              │        ├───────────────┤   │
//	│   └────────┘        │  ┌────────┐  │        │keygen.Generator│  │
//	│       ▲             │  │ hybrid │  │        ├───────────────┤   │
//	│       │             │  │Manager │◀─┼────────│stampede/refresh│  │
//	│       │    hit      │  └────────┘  │  miss  └───────┬───────┘   │
//	│       └─────────────│   L1→L2→L3   │────────────────┘           │
//	│                     └──────────────┘   factory                  │
//	│                                                                  │
//	└──────────────────────────────────────────────────────────────────┘
//
// # Core Components
//
//   - [Manager]: the facade — GetOrCreate, GetOrCreateBy, TryGet,
//     InvalidateByTags, batch variants, event subscription
//   - [Builder]: fluent per-call policy accumulation committed by Execute
//   - [Middleware]: the decorator-facing wrapper that callers generated
//     or hand-written interception layers delegate to
//   - [Option]: per-call policy adjustments (highest precedence, above
//     every policy.Registry layer)
//   - [Error] / [Kind]: the tagged error surface — cache-internal
//     failures never reach callers as untyped aborts
//
// # Quick Start
//
//	mgr, err := cache.New(ctx, cache.Config{
//	    L1:         memstore.Config{MaxEntries: 10000},
//	    DefaultTTL: 5 * time.Minute,
//	})
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
//
//	v, err := mgr.GetOrCreateBy(ctx, "Users.Get",
//	    []keygen.Arg{{Name: "id", Value: 456}},
//	    func(ctx context.Context) ([]byte, error) {
//	        return fetchUser(ctx, 456)
//	    },
//	    cache.WithTags("users"))
//
// Invalidation after a mutation:
//
//	_ = mgr.InvalidateByTags(ctx, "users")
//
// # Policy Precedence
//
// A call's effective policy merges, in ascending precedence: the
// registry's attribute layer < fluent layer < file layer < runtime
// override layer < per-call Options. Tags union across all layers rather
// than replacing, so a group tag configured centrally is never dropped by
// a call-site override.
//
// # Outcomes and Events
//
// Every completed lookup has an [Outcome]: Hit (served from a tier),
// MissComputed (factory built it), or MissFailed (factory errored).
// Observability hooks receive outcomes rather than inferring them from
// errors. Subscribe to hit/miss/evict [Event]s via
// [Manager.SubscribeEvents], or per-call via [OnHit] and [OnMiss].
//
// # Error Handling
//
// Factory errors propagate to callers wrapped in an [Error] with
// [KindFactoryFailed]; errors.Is/As reach the original verbatim. Tier
// failures are absorbed (the cache fails safe to a miss) and never
// surface on the read path. Policy validation fails synchronously at
// configuration time with [KindPolicyInvalid].
//
// Sentinel errors (use errors.Is):
//
//   - [ErrInvalidKey]: key is empty, whitespace-only, or contains newlines
//   - [ErrKeyTooLong]: key exceeds MaxKeyLength (512 characters)
//
// # Thread Safety
//
// All exported types are safe for concurrent use. GetOrCreate guarantees
// at-most-one concurrent factory invocation per key within the process
// (see package stampede); the winning build's result is visible in L1
// before any waiter's call returns.
package cache
