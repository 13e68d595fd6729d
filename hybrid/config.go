package hybrid

import (
	"time"

	"github.com/jonwraymond/cachecore/resilience"
)

// TierRetry configures per-operation retry for one remote tier:
// attempt count, base and cap delays, and backoff shape.
type TierRetry struct {
	MaxRetries            int
	BaseDelay             time.Duration
	MaxDelay              time.Duration
	UseExponentialBackoff bool
}

// Config configures a Manager.
type Config struct {
	L2Enabled bool
	L3Enabled bool

	L1DefaultTTL time.Duration
	L2DefaultTTL time.Duration
	L3DefaultTTL time.Duration

	AsyncL2Writes           bool
	AsyncL3Writes           bool
	AsyncWriteQueueCapacity int
	MaxConcurrentL2         int
	MaxConcurrentL3         int

	EnableBackplane bool

	// InstanceID identifies this instance for sender-origin suppression.
	// When a backplane is configured it is overwritten with the
	// backplane's own id (the one stamped on outgoing messages), so the
	// two can never diverge.
	InstanceID string

	KeyPrefix string

	L2Retry TierRetry
	L3Retry TierRetry

	// Per-call operation timeouts for the remote tiers. On timeout the
	// tier is treated as missing for reads and failed for writes.
	L2OperationTimeout time.Duration
	L3OperationTimeout time.Duration

	EnableL2Promotion    bool
	L2PromotionThreshold time.Duration
	EnableL3Promotion    bool
	L3PromotionThreshold time.Duration

	// MaxTagMappings bounds the L1 tag index; copied into the store's
	// configuration by the cache facade when the store's own field is
	// unset. Efficient L1 tag invalidation itself is toggled on the
	// store (memstore.Config.DisableTagIndex, inverted so the Go zero
	// value keeps the index on).
	MaxTagMappings int64

	// Circuit breaker parameters, applied per enabled remote tier.
	FailureRatio      float64
	MinimumThroughput uint32
	BreakDuration     time.Duration

	// ShutdownGrace bounds how long Close waits for the write-behind
	// queue to drain before giving up.
	ShutdownGrace time.Duration

	// WritePool, when non-nil, is the bulkhead the write-behind workers
	// acquire slots from. Pass the same instance to refresh.Config so
	// background rebuilds and queued writes contend for one capacity
	// budget instead of two. A nil WritePool gets a private bulkhead
	// sized from MaxConcurrentL2+MaxConcurrentL3.
	WritePool *resilience.Bulkhead
}

func (c Config) withDefaults() Config {
	if c.AsyncWriteQueueCapacity <= 0 {
		c.AsyncWriteQueueCapacity = 256
	}
	if c.MaxConcurrentL2 <= 0 {
		c.MaxConcurrentL2 = 4
	}
	if c.MaxConcurrentL3 <= 0 {
		c.MaxConcurrentL3 = 4
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.5
	}
	if c.MinimumThroughput <= 0 {
		c.MinimumThroughput = 5
	}
	if c.BreakDuration <= 0 {
		c.BreakDuration = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	if c.L2PromotionThreshold <= 0 {
		c.L2PromotionThreshold = time.Second
	}
	if c.L3PromotionThreshold <= 0 {
		c.L3PromotionThreshold = time.Second
	}
	if c.L2OperationTimeout <= 0 {
		c.L2OperationTimeout = 2 * time.Second
	}
	if c.L3OperationTimeout <= 0 {
		c.L3OperationTimeout = 5 * time.Second
	}
	if c.WritePool == nil {
		c.WritePool = resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: c.MaxConcurrentL2 + c.MaxConcurrentL3,
		})
	}
	return c
}
