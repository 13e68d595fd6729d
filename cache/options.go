package cache

import (
	"time"

	"github.com/jonwraymond/cachecore/policy"
)

// callOptions is the fully-resolved per-call state: the effective policy
// descriptor (registry layers merged, then per-call Options applied on
// top) plus call-local hooks that never live in the registry.
type callOptions struct {
	desc      policy.Descriptor
	condition func() bool
	onHit     func(Event)
	onMiss    func(Event)
	keyGen    string
}

// Option adjusts one call's effective policy. Options apply above every
// registry layer: a WithTTL here beats a runtime override for the same
// method.
type Option func(*callOptions)

// WithTTL sets the entry's effective duration for this call.
func WithTTL(d time.Duration) Option {
	return func(o *callOptions) { o.desc.Duration = d }
}

// WithTags adds tags for this call. Like every other layer, tags union —
// registry-supplied tags are kept.
func WithTags(tags ...string) Option {
	return func(o *callOptions) {
		seen := make(map[string]struct{}, len(o.desc.Tags))
		for _, t := range o.desc.Tags {
			seen[t] = struct{}{}
		}
		for _, t := range tags {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			o.desc.Tags = append(o.desc.Tags, t)
		}
	}
}

// WithVersion sets the key-generation version for this call. Bumping it
// changes every generated key, logically invalidating prior entries.
func WithVersion(v int) Option {
	return func(o *callOptions) { o.desc.Version = v }
}

// WithStampedeMode selects how concurrent misses for this call's key are
// coordinated.
func WithStampedeMode(m policy.StampedeMode) Option {
	return func(o *callOptions) { o.desc.StampedeMode = m }
}

// WithRefreshThreshold arms refresh-ahead for this call's entry.
func WithRefreshThreshold(rt policy.RefreshThreshold) Option {
	return func(o *callOptions) { o.desc.RefreshThreshold = rt }
}

// WithSlidingExtension extends the entry's expiration by d on every hit.
func WithSlidingExtension(d time.Duration) Option {
	return func(o *callOptions) { o.desc.SlidingExtension = d }
}

// WithKeyGenerator selects the key generator ("fast", "readable",
// "binary") for GetOrCreateBy calls.
func WithKeyGenerator(name string) Option {
	return func(o *callOptions) { o.keyGen = name }
}

// WithCondition gates caching on a predicate evaluated per call: when it
// returns false the factory runs directly and nothing is stored or read.
func WithCondition(pred func() bool) Option {
	return func(o *callOptions) { o.condition = pred }
}

// WithCancelSafeFactory marks this call's factory safe to abort when the
// last single-flight waiter cancels. Off by default: an in-flight build
// normally runs to completion so its result can still land in L1.
func WithCancelSafeFactory() Option {
	return func(o *callOptions) { o.desc.CancelSafeFactory = true }
}

// OnHit registers a hook invoked when this call is served from a tier.
func OnHit(fn func(Event)) Option {
	return func(o *callOptions) { o.onHit = fn }
}

// OnMiss registers a hook invoked when this call had to build (or failed
// to build) the value.
func OnMiss(fn func(Event)) Option {
	return func(o *callOptions) { o.onMiss = fn }
}
