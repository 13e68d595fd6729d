package cache

import (
	"context"
	"time"

	"github.com/jonwraymond/cachecore/keygen"
	"github.com/jonwraymond/cachecore/policy"
)

// Builder accumulates per-call policy fluently and commits with Execute
// or ExecuteBy. It is sugar over the Option form: each With call appends
// the corresponding Option.
//
//	v, err := mgr.Build().
//	    WithDuration(time.Minute).
//	    WithTags("users", "u:7").
//	    WithStampedeMode(policy.StampedeSingleFlight).
//	    OnMiss(func(ev cache.Event) { log.Println("built", ev.Key) }).
//	    Execute(ctx, "GetUser:7", factory)
//
// A Builder is single-use and not safe for concurrent mutation; build
// one per call site.
type Builder struct {
	m    *Manager
	opts []Option
}

// Build starts a fluent call against m.
func (m *Manager) Build() *Builder { return &Builder{m: m} }

// WithDuration sets the entry's TTL.
func (b *Builder) WithDuration(d time.Duration) *Builder {
	b.opts = append(b.opts, WithTTL(d))
	return b
}

// WithTags adds invalidation tags.
func (b *Builder) WithTags(tags ...string) *Builder {
	b.opts = append(b.opts, WithTags(tags...))
	return b
}

// WithVersion sets the key-generation version.
func (b *Builder) WithVersion(v int) *Builder {
	b.opts = append(b.opts, WithVersion(v))
	return b
}

// WithKeyGenerator selects the key generator for ExecuteBy.
func (b *Builder) WithKeyGenerator(name string) *Builder {
	b.opts = append(b.opts, WithKeyGenerator(name))
	return b
}

// WithStampedeMode selects the concurrent-miss coordination mode.
func (b *Builder) WithStampedeMode(mode policy.StampedeMode) *Builder {
	b.opts = append(b.opts, WithStampedeMode(mode))
	return b
}

// WithRefreshThreshold arms refresh-ahead.
func (b *Builder) WithRefreshThreshold(rt policy.RefreshThreshold) *Builder {
	b.opts = append(b.opts, WithRefreshThreshold(rt))
	return b
}

// WithSlidingExtension extends the entry's life on every hit.
func (b *Builder) WithSlidingExtension(d time.Duration) *Builder {
	b.opts = append(b.opts, WithSlidingExtension(d))
	return b
}

// WithCondition gates caching on a per-call predicate.
func (b *Builder) WithCondition(pred func() bool) *Builder {
	b.opts = append(b.opts, WithCondition(pred))
	return b
}

// OnHit registers a hit hook.
func (b *Builder) OnHit(fn func(Event)) *Builder {
	b.opts = append(b.opts, OnHit(fn))
	return b
}

// OnMiss registers a miss hook.
func (b *Builder) OnMiss(fn func(Event)) *Builder {
	b.opts = append(b.opts, OnMiss(fn))
	return b
}

// Execute commits the accumulated policy against an explicit key.
func (b *Builder) Execute(ctx context.Context, key string, factory Factory) ([]byte, error) {
	return b.m.GetOrCreate(ctx, key, factory, b.opts...)
}

// ExecuteBy commits against a generated key.
func (b *Builder) ExecuteBy(ctx context.Context, methodID string, args []keygen.Arg, factory Factory) ([]byte, error) {
	return b.m.GetOrCreateBy(ctx, methodID, args, factory, b.opts...)
}
