package providers

import (
	"context"
	"time"

	"github.com/jonwraymond/cachecore/health"
)

// Stats are additive, monotonic counters; reads are relaxed (no
// cross-field atomicity implied).
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
}

// Provider is the L2/L3 storage contract. It is the module's one
// dynamic-dispatch seam: hybrid.Manager's l2 and l3 fields are typed as
// this interface; everything else in the module is concrete.
//
// Implementations are expected to implement tag cleanup atomically when
// possible (RedisProvider, via a Lua script); when they cannot
// (SQLProvider), the manager falls back to a documented two-step,
// non-atomic delete.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	Remove(ctx context.Context, key string) error
	RemoveByTag(ctx context.Context, tag string) error
	Exists(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) health.Result
	Stats(ctx context.Context) (Stats, error)
}
