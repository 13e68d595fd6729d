package hybrid

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jonwraymond/cachecore/backplane"
	"github.com/jonwraymond/cachecore/memstore"
	"github.com/jonwraymond/cachecore/observe"
	"github.com/jonwraymond/cachecore/policy"
	"github.com/jonwraymond/cachecore/providers"
	"github.com/jonwraymond/cachecore/refresh"
	"github.com/jonwraymond/cachecore/resilience"
	"github.com/jonwraymond/cachecore/stampede"
)

// writeJob is one queued write-behind, destined for tier 2 (L2) or 3 (L3).
type writeJob struct {
	tier  int
	key   string
	value []byte
	ttl   time.Duration
	tags  []string
}

// Outcome reports which tier satisfied a GetOrCreate call, or that the
// factory had to build the value.
type Outcome int

const (
	OutcomeL1Hit Outcome = iota
	OutcomeL2Hit
	OutcomeL3Hit
	OutcomeBuilt
)

func (o Outcome) String() string {
	switch o {
	case OutcomeL1Hit:
		return "l1_hit"
	case OutcomeL2Hit:
		return "l2_hit"
	case OutcomeL3Hit:
		return "l3_hit"
	case OutcomeBuilt:
		return "built"
	default:
		return "unknown"
	}
}

// Hit reports whether the value came from a tier rather than the factory.
func (o Outcome) Hit() bool { return o != OutcomeBuilt }

// coldKey identifies one (tier, key) pair being tracked for promotion
// eligibility: how long a key has been consistently observed served from
// a colder tier before it earns a copy in a warmer one.
type coldKey struct {
	tier int
	key  string
}

// Manager is the hybrid storage orchestrator: L1
// (memstore, always present) backed by optional L2/L3 providers.Provider
// tiers, each guarded by its own circuit breaker and retry policy, with
// promotion on read, write-behind on write, and backplane-driven
// cross-instance invalidation.
type Manager struct {
	cfg Config

	l1 *memstore.Store
	l2 providers.Provider
	l3 providers.Provider

	l2Breaker *gobreaker.CircuitBreaker
	l3Breaker *gobreaker.CircuitBreaker
	l2Retry   *resilience.Retry
	l3Retry   *resilience.Retry
	l2Timeout *resilience.Timeout
	l3Timeout *resilience.Timeout

	coordinator *stampede.Coordinator
	refresher   *refresh.Scheduler
	bulkhead    *resilience.Bulkhead

	bp          backplane.Backplane
	instanceID  string
	unsubscribe func()

	writeQueue chan writeJob
	wg         sync.WaitGroup

	coldSeen sync.Map // coldKey -> time.Time

	stats Stats

	logger observe.Logger
}

// New creates a Manager. l2 and l3 may both be nil (L1-only caching); bp
// may be nil (no cross-instance invalidation). coordinator and refresher
// are shared with the owning cache.Manager so a background refresh-ahead
// rebuild and a foreground miss for the same key collapse into one
// factory call.
func New(
	cfg Config,
	l1 *memstore.Store,
	l2, l3 providers.Provider,
	coordinator *stampede.Coordinator,
	refresher *refresh.Scheduler,
	bp backplane.Backplane,
	logger observe.Logger,
) *Manager {
	cfg = cfg.withDefaults()
	// The backplane's id is the one stamped on outgoing messages, so
	// suppression must key on it; a separately-configured id could
	// silently diverge from what peers actually see.
	if bp != nil {
		cfg.InstanceID = bp.InstanceID()
	}

	m := &Manager{
		cfg:         cfg,
		l1:          l1,
		l2:          l2,
		l3:          l3,
		coordinator: coordinator,
		refresher:   refresher,
		bulkhead:    cfg.WritePool,
		bp:          bp,
		instanceID:  cfg.InstanceID,
		writeQueue:  make(chan writeJob, cfg.AsyncWriteQueueCapacity),
		logger:      logger,
	}

	if l2 != nil {
		m.l2Breaker = newTierBreaker("l2", cfg)
		m.l2Retry = newTierRetry(cfg.L2Retry)
		m.l2Timeout = resilience.NewTimeout(resilience.TimeoutConfig{Timeout: cfg.L2OperationTimeout})
	}
	if l3 != nil {
		m.l3Breaker = newTierBreaker("l3", cfg)
		m.l3Retry = newTierRetry(cfg.L3Retry)
		m.l3Timeout = resilience.NewTimeout(resilience.TimeoutConfig{Timeout: cfg.L3OperationTimeout})
	}
	if cfg.EnableBackplane && bp != nil {
		m.unsubscribe = bp.Subscribe(m.handleBackplaneMessage)
	}

	m.startWriteBehindWorkers()
	return m
}

func newTierBreaker(name string, cfg Config) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cfg.BreakDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumThroughput {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
	})
}

func newTierRetry(t TierRetry) *resilience.Retry {
	strategy := resilience.BackoffConstant
	if t.UseExponentialBackoff {
		strategy = resilience.BackoffExponential
	}
	maxAttempts := t.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  maxAttempts,
		InitialDelay: t.BaseDelay,
		MaxDelay:     t.MaxDelay,
		Strategy:     strategy,
	})
}

func (m *Manager) tierKey(key string) string {
	if m.cfg.KeyPrefix == "" {
		return key
	}
	return m.cfg.KeyPrefix + key
}

// GetOrCreate resolves key through L1, then L2, then L3, falling back to
// factory (deduplicated through the stampede coordinator) on a total
// miss. A successful build or colder-tier read is written through to
// every warmer tier enabled for it.
func (m *Manager) GetOrCreate(ctx context.Context, key string, desc policy.Descriptor, factory func(context.Context) ([]byte, error)) ([]byte, Outcome, error) {
	if v, ok := m.tryL1(ctx, key, desc, factory); ok {
		return v, OutcomeL1Hit, nil
	}

	if v, ok, err := m.readTier(ctx, 2, key); err == nil && ok {
		m.l1.Set(key, v, desc.Duration, desc.Tags)
		if m.shouldPromote(2, key) {
			m.stats.Promotions.Add(1)
		}
		return v, OutcomeL2Hit, nil
	}

	if v, ok, err := m.readTier(ctx, 3, key); err == nil && ok {
		m.l1.Set(key, v, desc.Duration, desc.Tags)
		if m.shouldPromote(3, key) {
			m.stats.Promotions.Add(1)
			m.writeThrough(key, v, desc) // also refill L2 from a promoted L3 hit
		}
		return v, OutcomeL3Hit, nil
	}

	result, err, _ := m.coordinator.ComputeOnce(ctx, key, desc.StampedeMode, desc.CancelSafeFactory,
		func(fctx context.Context) (any, error) { return m.build(fctx, key, desc, factory) })
	if err != nil {
		if errors.Is(err, stampede.ErrLockUnavailable) {
			if v, ok, rerr := m.readTier(ctx, 2, key); rerr == nil && ok {
				m.l1.Set(key, v, desc.Duration, desc.Tags)
				return v, OutcomeL2Hit, nil
			}
		}
		return nil, OutcomeBuilt, err
	}
	return result.([]byte), OutcomeBuilt, nil
}

// TryGet peeks at key across the enabled tiers without ever invoking a
// factory, promoting, or recording a build. L1 access statistics still
// update on an L1 hit.
func (m *Manager) TryGet(ctx context.Context, key string) ([]byte, bool) {
	if v, _, ok := m.l1.GetTracked(key); ok {
		return v, true
	}
	if v, ok, err := m.readTier(ctx, 2, key); err == nil && ok {
		return v, true
	}
	if v, ok, err := m.readTier(ctx, 3, key); err == nil && ok {
		return v, true
	}
	return nil, false
}

// build runs the caller's factory, records outcome stats, writes the
// result to L1 synchronously (a concurrent reader observing the build's
// completion always sees L1 already populated) and enqueues the colder
// tiers for write-behind.
func (m *Manager) build(ctx context.Context, key string, desc policy.Descriptor, factory func(context.Context) ([]byte, error)) (any, error) {
	v, err := factory(ctx)
	if err != nil {
		m.stats.BuildErrors.Add(1)
		return nil, err
	}
	m.stats.Builds.Add(1)
	m.l1.Set(key, v, desc.Duration, desc.Tags)
	m.writeThrough(key, v, desc)
	return v, nil
}

func (m *Manager) tryL1(ctx context.Context, key string, desc policy.Descriptor, factory func(context.Context) ([]byte, error)) ([]byte, bool) {
	v, _, ok := m.l1.GetTracked(key)
	if !ok {
		m.stats.L1Misses.Add(1)
		return nil, false
	}
	m.stats.L1Hits.Add(1)

	if m.refresher != nil {
		if remaining, ok := m.l1.Remaining(key); ok {
			m.refresher.MaybeArm(ctx, key, desc, remaining,
				func(rctx context.Context) (any, error) { return m.build(rctx, key, desc, factory) })
		}
	}
	return v, true
}

// readTier reads key from L2 (tier==2) or L3 (tier==3), through that
// tier's circuit breaker and retry policy. A nil provider for the tier
// is reported as a clean miss, not an error, so GetOrCreate's tier
// fallthrough needs no separate nil checks.
func (m *Manager) readTier(ctx context.Context, tier int, key string) ([]byte, bool, error) {
	provider, breaker, retry := m.tierComponents(tier)
	if provider == nil {
		return nil, false, nil
	}

	var value []byte
	var found bool
	_, err := breaker.Execute(func() (any, error) {
		return nil, retry.Execute(ctx, func(rctx context.Context) error {
			return m.tierTimeout(tier).Execute(rctx, func(tctx context.Context) error {
				v, ok, gerr := provider.Get(tctx, m.tierKey(key))
				if gerr != nil {
					return gerr
				}
				value, found = v, ok
				return nil
			})
		})
	})
	if err != nil {
		m.recordTierFailure(tier)
		return nil, false, err
	}
	if found {
		m.recordTierHit(tier)
	} else {
		m.recordTierMiss(tier)
	}
	return value, found, nil
}

// shouldPromote reports whether a colder-tier hit for key has now been
// observed for at least that tier's configured PromotionThreshold,
// guarding against a single one-shot read polluting a warmer tier.
// Promotion to L1 itself (the Set call) always happens on every
// colder-tier hit — shouldPromote instead gates the separate
// write-behind refill of intermediate tiers and the Promotions counter.
func (m *Manager) shouldPromote(tier int, key string) bool {
	enabled, threshold := false, time.Duration(0)
	switch tier {
	case 2:
		enabled, threshold = m.cfg.EnableL2Promotion, m.cfg.L2PromotionThreshold
	case 3:
		enabled, threshold = m.cfg.EnableL3Promotion, m.cfg.L3PromotionThreshold
	}
	if !enabled {
		return false
	}

	ck := coldKey{tier: tier, key: key}
	now := time.Now()
	v, loaded := m.coldSeen.LoadOrStore(ck, now)
	if !loaded {
		return false
	}
	if now.Sub(v.(time.Time)) < threshold {
		return false
	}
	m.coldSeen.Delete(ck)
	return true
}

func (m *Manager) tierComponents(tier int) (providers.Provider, *gobreaker.CircuitBreaker, *resilience.Retry) {
	if tier == 2 {
		return m.l2, m.l2Breaker, m.l2Retry
	}
	return m.l3, m.l3Breaker, m.l3Retry
}

func (m *Manager) tierTimeout(tier int) *resilience.Timeout {
	if tier == 2 {
		return m.l2Timeout
	}
	return m.l3Timeout
}

func (m *Manager) recordTierHit(tier int) {
	if tier == 2 {
		m.stats.L2Hits.Add(1)
	} else {
		m.stats.L3Hits.Add(1)
	}
}

func (m *Manager) recordTierMiss(tier int) {
	if tier == 2 {
		m.stats.L2Misses.Add(1)
	} else {
		m.stats.L3Misses.Add(1)
	}
}

func (m *Manager) recordTierFailure(tier int) {
	if tier == 2 {
		m.stats.L2Failures.Add(1)
	} else {
		m.stats.L3Failures.Add(1)
	}
}

// writeThrough dispatches a write-behind (or, per config, synchronous)
// write of value to every enabled colder tier.
func (m *Manager) writeThrough(key string, value []byte, desc policy.Descriptor) {
	if m.l2 != nil {
		m.dispatchWrite(2, key, value, desc.Duration, desc.Tags, m.cfg.AsyncL2Writes)
	}
	if m.l3 != nil {
		m.dispatchWrite(3, key, value, desc.Duration, desc.Tags, m.cfg.AsyncL3Writes)
	}
}

func (m *Manager) dispatchWrite(tier int, key string, value []byte, ttl time.Duration, tags []string, async bool) {
	job := writeJob{tier: tier, key: key, value: value, ttl: ttl, tags: tags}
	if !async {
		m.performWrite(context.Background(), job)
		return
	}
	select {
	case m.writeQueue <- job:
		m.stats.WriteBehindQueued.Add(1)
	default:
		// Queue full: fall back to a synchronous write rather than
		// dropping it.
		m.stats.WriteBehindFallbackSync.Add(1)
		m.performWrite(context.Background(), job)
	}
}

func (m *Manager) performWrite(ctx context.Context, job writeJob) {
	provider, breaker, retry := m.tierComponents(job.tier)
	if provider == nil {
		return
	}
	_, err := breaker.Execute(func() (any, error) {
		return nil, retry.Execute(ctx, func(rctx context.Context) error {
			return m.tierTimeout(job.tier).Execute(rctx, func(tctx context.Context) error {
				return provider.Set(tctx, m.tierKey(job.key), job.value, job.ttl, job.tags)
			})
		})
	})
	if err != nil {
		m.stats.WriteBehindFailures.Add(1)
		m.recordTierFailure(job.tier)
		m.logf(ctx, "write-behind failed", observe.Field{Key: "tier", Value: job.tier}, observe.Field{Key: "key", Value: job.key}, observe.Field{Key: "error", Value: err.Error()})
	}
}

func (m *Manager) startWriteBehindWorkers() {
	workers := m.cfg.MaxConcurrentL2 + m.cfg.MaxConcurrentL3
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.writeBehindLoop()
	}
}

func (m *Manager) writeBehindLoop() {
	defer m.wg.Done()
	for job := range m.writeQueue {
		ctx := context.Background()
		if err := m.bulkhead.Acquire(ctx); err != nil {
			m.performWrite(ctx, job)
			continue
		}
		m.performWrite(ctx, job)
		m.bulkhead.Release()
	}
}

// InvalidateKey removes key from every tier and, if a backplane is
// configured, publishes the invalidation to other instances.
func (m *Manager) InvalidateKey(ctx context.Context, key string) error {
	m.l1.Remove(key)
	var errs []error
	if m.l2 != nil {
		if err := m.l2.Remove(ctx, m.tierKey(key)); err != nil {
			errs = append(errs, err)
		}
	}
	if m.l3 != nil {
		if err := m.l3.Remove(ctx, m.tierKey(key)); err != nil {
			errs = append(errs, err)
		}
	}
	if m.bp != nil {
		if err := m.bp.PublishKey(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateTag removes every key carrying tag from every tier and
// publishes the invalidation. Tags are never key-prefixed: writes hand
// them to providers raw, so lookups must too.
func (m *Manager) InvalidateTag(ctx context.Context, tag string) error {
	m.l1.RemoveByTag(tag)
	var errs []error
	if m.l2 != nil {
		if err := m.l2.RemoveByTag(ctx, tag); err != nil {
			errs = append(errs, err)
		}
	}
	if m.l3 != nil {
		if err := m.l3.RemoveByTag(ctx, tag); err != nil {
			errs = append(errs, err)
		}
	}
	if m.bp != nil {
		if err := m.bp.PublishTag(ctx, tag); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateAll clears L1 only, per backplane.KindClearAll's documented
// scope (L2/L3 retain their own independent contents and lifecycle).
func (m *Manager) InvalidateAll(ctx context.Context) error {
	m.l1.Clear()
	if m.bp != nil {
		return m.bp.PublishClearAll(ctx)
	}
	return nil
}

// handleBackplaneMessage applies an invalidation received from another
// instance to L1. Backplane implementations already suppress a sender's
// own messages; the id check here catches a transport that doesn't.
func (m *Manager) handleBackplaneMessage(msg backplane.Message) {
	if msg.InstanceID == m.instanceID {
		return
	}
	switch msg.Kind {
	case backplane.KindKey:
		m.l1.Remove(msg.Payload)
	case backplane.KindTag:
		m.l1.RemoveByTag(msg.Payload)
	case backplane.KindClearAll:
		m.l1.Clear()
	}
	m.stats.BackplaneInvalidations.Add(1)
}

func (m *Manager) logf(ctx context.Context, msg string, fields ...observe.Field) {
	if m.logger == nil {
		return
	}
	m.logger.Warn(ctx, msg, fields...)
}

// Close unsubscribes from the backplane and waits (up to
// Config.ShutdownGrace) for the write-behind queue to drain.
func (m *Manager) Close() error {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	close(m.writeQueue)

	done := make(chan struct{})
	go func() { m.wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(m.cfg.ShutdownGrace):
	}
	return nil
}
