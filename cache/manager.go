package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/cachecore/backplane"
	"github.com/jonwraymond/cachecore/hybrid"
	"github.com/jonwraymond/cachecore/keygen"
	"github.com/jonwraymond/cachecore/memstore"
	"github.com/jonwraymond/cachecore/observe"
	"github.com/jonwraymond/cachecore/policy"
	"github.com/jonwraymond/cachecore/providers"
	"github.com/jonwraymond/cachecore/refresh"
	"github.com/jonwraymond/cachecore/resilience"
	"github.com/jonwraymond/cachecore/stampede"
)

// Factory computes the value for a key on a total miss. It may block;
// it is invoked at most once concurrently per key under the default
// stampede mode.
type Factory func(ctx context.Context) ([]byte, error)

// Config assembles a Manager. Only L1 is mandatory (its zero Config is
// usable); everything else degrades gracefully when absent.
type Config struct {
	// Registry resolves per-method policy descriptors. A fresh empty
	// registry is created when nil.
	Registry *policy.Registry

	// L1 configures the in-process store.
	L1 memstore.Config

	// L2 and L3 are the optional remote tiers.
	L2 providers.Provider
	L3 providers.Provider

	// Hybrid configures tier coordination (write-behind, promotion,
	// circuit breaking, retries).
	Hybrid hybrid.Config

	// Backplane propagates invalidations across instances when non-nil.
	Backplane backplane.Backplane

	// Locker backs the distributed-lock stampede mode when non-nil.
	// providers.RedisProvider satisfies it.
	Locker stampede.DistributedLocker

	// DefaultTTL applies when a call's resolved policy has no duration.
	DefaultTTL time.Duration

	// MaxTTL, when set, clamps every call's effective duration.
	MaxTTL time.Duration

	// DefaultKeyGenerator names the generator GetOrCreateBy uses when
	// neither the policy nor the call selects one: "fast" (default),
	// "readable", or "binary".
	DefaultKeyGenerator string

	// RefreshMaxTriggersPerSecond caps refresh-ahead scheduling. Zero
	// uses the refresh package default.
	RefreshMaxTriggersPerSecond float64

	Logger  observe.Logger
	Metrics observe.Metrics
}

// Manager is the cache facade. It owns the L1 store, the hybrid tier
// coordinator, the stampede coordinator, and the refresh-ahead
// scheduler, and holds (rather than globally registers) the policy
// registry handle.
type Manager struct {
	cfg        Config
	registry   *policy.Registry
	l1         *memstore.Store
	hybrid     *hybrid.Manager
	generators map[string]keygen.Generator
	defaultGen string
	events     *eventBus
	logger     observe.Logger
	metrics    observe.Metrics

	closeOnce sync.Once
	closeErr  error
}

// Generator names accepted by Config.DefaultKeyGenerator,
// policy.Descriptor.KeyGenerator, and WithKeyGenerator.
const (
	GeneratorFast     = "fast"
	GeneratorReadable = "readable"
	GeneratorBinary   = "binary"
)

// New assembles a Manager and starts its background machinery (cleanup
// sweep, write-behind workers, backplane subscription). ctx bounds the
// lifetime of the L1 cleanup goroutine; Close releases everything else.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Registry == nil {
		cfg.Registry = policy.NewRegistry()
	}
	defaultGen := cfg.DefaultKeyGenerator
	if defaultGen == "" {
		defaultGen = GeneratorFast
	}

	m := &Manager{
		cfg:      cfg,
		registry: cfg.Registry,
		generators: map[string]keygen.Generator{
			GeneratorFast:     keygen.NewFastHash(),
			GeneratorReadable: keygen.NewReadable(),
			GeneratorBinary:   keygen.NewBinary(),
		},
		defaultGen: defaultGen,
		events:     newEventBus(),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
	if _, ok := m.generators[defaultGen]; !ok {
		return nil, &Error{Kind: KindPolicyInvalid, Err: errors.New("unknown key generator " + defaultGen)}
	}

	l1cfg := cfg.L1
	if l1cfg.MaxTagMappings == 0 {
		l1cfg.MaxTagMappings = cfg.Hybrid.MaxTagMappings
	}
	userEvict := l1cfg.OnEvict
	l1cfg.OnEvict = func(key string) {
		m.events.emit(Event{Kind: EventEvict, Key: key})
		if userEvict != nil {
			userEvict(key)
		}
	}
	m.l1 = memstore.NewStore(ctx, l1cfg)

	coordinator := stampede.New(cfg.Locker)

	hybridCfg := cfg.Hybrid
	if hybridCfg.WritePool == nil {
		workers := hybridCfg.MaxConcurrentL2 + hybridCfg.MaxConcurrentL3
		if workers < 1 {
			workers = 8
		}
		hybridCfg.WritePool = resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: workers})
	}
	refresher := refresh.New(refresh.Config{
		Bulkhead:             hybridCfg.WritePool,
		MaxTriggersPerSecond: cfg.RefreshMaxTriggersPerSecond,
		Logger:               cfg.Logger,
	}, coordinator)

	m.hybrid = hybrid.New(hybridCfg, m.l1, cfg.L2, cfg.L3, coordinator, refresher, cfg.Backplane, cfg.Logger)
	return m, nil
}

// ConfigurePolicy validates d and installs it as methodID's runtime
// override (the highest registry layer). Validation happens here, at
// configuration time, never on the read path.
func (m *Manager) ConfigurePolicy(methodID string, d policy.Descriptor) error {
	if d.Duration <= 0 {
		return &Error{Kind: KindPolicyInvalid, Err: errors.New("duration must be > 0 when caching is active")}
	}
	if d.KeyGenerator != "" {
		if _, ok := m.generators[d.KeyGenerator]; !ok {
			return &Error{Kind: KindPolicyInvalid, Err: errors.New("unknown key generator " + d.KeyGenerator)}
		}
	}
	d.MethodID = methodID
	m.registry.Upsert(methodID, d)
	return nil
}

// Registry returns the policy registry handle, for callers wiring file
// sources or subscriptions.
func (m *Manager) Registry() *policy.Registry { return m.registry }

// GetOrCreate returns the cached value for key, building it with factory
// on a total miss. opts apply above every registry layer.
func (m *Manager) GetOrCreate(ctx context.Context, key string, factory Factory, opts ...Option) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	co := m.resolve(policy.Descriptor{MethodID: key}, opts)
	return m.lookup(ctx, key, co, factory)
}

// GetOrCreateBy resolves methodID's policy, generates the cache key from
// (methodID, args, version), and delegates to the GetOrCreate path. A
// key-generation failure degrades to calling factory directly — the
// caller's data flow is never corrupted by cache-internal errors.
func (m *Manager) GetOrCreateBy(ctx context.Context, methodID string, args []keygen.Arg, factory Factory, opts ...Option) ([]byte, error) {
	desc, _ := m.registry.GetPolicy(methodID)
	co := m.resolve(desc, opts)

	key, err := m.generatorFor(co).Generate(methodID, args, co.desc.KeyMaterial())
	if err != nil {
		m.warn(ctx, "key generation failed, bypassing cache",
			observe.Field{Key: "method_id", Value: methodID},
			observe.Field{Key: "error", Value: err.Error()})
		return factory(ctx)
	}
	return m.lookup(ctx, key, co, factory)
}

// TryGet peeks at key across all tiers without computing anything.
func (m *Manager) TryGet(ctx context.Context, key string) ([]byte, bool) {
	return m.hybrid.TryGet(ctx, key)
}

// InvalidateByTags expands each tag through the tag index, deletes the
// affected keys from every tier, and publishes the invalidations to
// peers. Tags are processed independently; the joined error reports any
// remote-tier failures (L1 deletion always succeeds first).
func (m *Manager) InvalidateByTags(ctx context.Context, tags ...string) error {
	var errs []error
	for _, tag := range tags {
		if err := m.hybrid.InvalidateTag(ctx, tag); err != nil {
			errs = append(errs, &Error{Kind: KindTierUnavailable, Key: tag, Err: err})
		}
	}
	return errors.Join(errs...)
}

// InvalidateKey removes one key from every tier and publishes.
func (m *Manager) InvalidateKey(ctx context.Context, key string) error {
	if err := m.hybrid.InvalidateKey(ctx, key); err != nil {
		return &Error{Kind: KindTierUnavailable, Key: key, Err: err}
	}
	return nil
}

// BatchItem is one entry of a GetOrCreateBatch call.
type BatchItem struct {
	Key     string
	Factory Factory
}

// GetOrCreateBatch resolves every item concurrently, amortizing tier
// round-trips. Results are positionally aligned with items. The first
// factory error cancels the remaining lookups.
func (m *Manager) GetOrCreateBatch(ctx context.Context, items []BatchItem, opts ...Option) ([][]byte, error) {
	results := make([][]byte, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchConcurrency)
	for i, item := range items {
		g.Go(func() error {
			v, err := m.GetOrCreate(gctx, item.Key, item.Factory, opts...)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

const maxBatchConcurrency = 16

// SubscribeEvents registers fn for hit/miss/evict events from every call
// on this Manager. The returned func unsubscribes. fn runs on the
// emitting goroutine and must return quickly.
func (m *Manager) SubscribeEvents(fn func(Event)) (unsubscribe func()) {
	return m.events.subscribe(fn)
}

// Stats is a point-in-time read of the Manager's counters.
type Stats struct {
	L1     memstore.StatsSnapshot
	Hybrid hybrid.StatsSnapshot
}

func (m *Manager) Stats() Stats {
	return Stats{L1: m.l1.Stats(), Hybrid: m.hybrid.Stats()}
}

// Close releases the Manager's long-lived resources: the hybrid
// manager's write-behind workers and backplane subscription, then the
// L1 cleanup goroutine. Safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.hybrid.Close()
		m.l1.Close()
	})
	return m.closeErr
}

// resolve merges per-call Options over the registry-resolved descriptor
// and applies the Manager-level duration defaults and clamps.
func (m *Manager) resolve(desc policy.Descriptor, opts []Option) *callOptions {
	co := &callOptions{desc: desc}
	for _, opt := range opts {
		opt(co)
	}
	if co.desc.Duration == 0 {
		co.desc.Duration = m.cfg.DefaultTTL
	}
	if m.cfg.MaxTTL > 0 && co.desc.Duration > m.cfg.MaxTTL {
		co.desc.Duration = m.cfg.MaxTTL
	}
	return co
}

func (m *Manager) generatorFor(co *callOptions) keygen.Generator {
	name := co.keyGen
	if name == "" {
		name = co.desc.KeyGenerator
	}
	if g, ok := m.generators[name]; ok {
		return g
	}
	return m.generators[m.defaultGen]
}

// lookup is the shared read path behind GetOrCreate and GetOrCreateBy.
func (m *Manager) lookup(ctx context.Context, key string, co *callOptions, factory Factory) ([]byte, error) {
	if co.condition != nil && !co.condition() {
		return factory(ctx)
	}
	if !co.desc.Active() {
		return factory(ctx)
	}

	start := time.Now()
	v, tierOutcome, err := m.hybrid.GetOrCreate(ctx, key, co.desc, func(fctx context.Context) ([]byte, error) {
		return factory(fctx)
	})
	elapsed := time.Since(start)

	if err != nil {
		m.record(ctx, co, OutcomeMissFailed, elapsed, err)
		ev := Event{Kind: EventMiss, Key: key, MethodID: co.desc.MethodID, Duration: elapsed}
		m.events.emit(ev)
		if co.onMiss != nil {
			co.onMiss(ev)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: KindCancelled, Key: key, Err: err}
		}
		return nil, &Error{Kind: KindFactoryFailed, Key: key, Err: err}
	}

	if tierOutcome.Hit() {
		if co.desc.SlidingExtension > 0 {
			m.l1.Extend(key, co.desc.SlidingExtension)
		}
		ev := Event{Kind: EventHit, Key: key, MethodID: co.desc.MethodID, Duration: elapsed}
		m.events.emit(ev)
		if co.onHit != nil {
			co.onHit(ev)
		}
		m.record(ctx, co, OutcomeHit, elapsed, nil)
		return v, nil
	}

	ev := Event{Kind: EventMiss, Key: key, MethodID: co.desc.MethodID, Duration: elapsed}
	m.events.emit(ev)
	if co.onMiss != nil {
		co.onMiss(ev)
	}
	m.record(ctx, co, OutcomeMissComputed, elapsed, nil)
	return v, nil
}

func (m *Manager) record(ctx context.Context, co *callOptions, outcome Outcome, d time.Duration, err error) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordOperation(ctx, observe.OperationMeta{ID: co.desc.MethodID}, outcome.String(), d, err)
}

func (m *Manager) warn(ctx context.Context, msg string, fields ...observe.Field) {
	if m.logger == nil {
		return
	}
	m.logger.Warn(ctx, msg, fields...)
}
