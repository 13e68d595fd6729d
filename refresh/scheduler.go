package refresh

import (
	"context"
	"time"

	"github.com/jonwraymond/cachecore/observe"
	"github.com/jonwraymond/cachecore/policy"
	"github.com/jonwraymond/cachecore/resilience"
	"github.com/jonwraymond/cachecore/stampede"
)

// Config configures a Scheduler.
type Config struct {
	// Bulkhead bounds the concurrent background rebuilds this Scheduler
	// may have in flight. Pass the same *resilience.Bulkhead instance the
	// hybrid manager's async write-behind workers use, so both kinds of
	// background work share one capacity budget.
	Bulkhead *resilience.Bulkhead

	// MaxTriggersPerSecond caps how often MaybeArm schedules a rebuild,
	// independent of the bulkhead's concurrency cap (a belt-and-suspenders
	// guard against scheduling storms under a thundering set of
	// near-expiry keys).
	MaxTriggersPerSecond float64

	Logger observe.Logger
}

// Scheduler arms background rebuilds when an entry's remaining lifetime
// drops under its policy's refresh-ahead threshold. Rebuilds are
// deduplicated through the same stampede.Coordinator single-flight path
// foreground misses use, so a background refresh and a concurrent
// foreground miss for the same key collapse into one factory call.
type Scheduler struct {
	bulkhead    *resilience.Bulkhead
	limiter     *resilience.RateLimiter
	coordinator *stampede.Coordinator
	logger      observe.Logger

	now func() time.Time
}

// New creates a Scheduler. coordinator is the same stampede.Coordinator
// the hybrid manager uses for foreground misses.
func New(cfg Config, coordinator *stampede.Coordinator) *Scheduler {
	if cfg.Bulkhead == nil {
		cfg.Bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 10})
	}
	rps := cfg.MaxTriggersPerSecond
	if rps <= 0 {
		rps = 50
	}
	return &Scheduler{
		bulkhead:    cfg.Bulkhead,
		limiter:     resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: rps, Burst: int(rps)}),
		coordinator: coordinator,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// MaybeArm schedules a background rebuild of key when remaining (the
// entry's time until absolute expiration) has dropped under desc's
// refresh-ahead threshold. The foreground caller that triggered this
// check is never blocked: MaybeArm always returns immediately, and the
// rebuild (if armed) runs on its own goroutine.
//
// If desc has no refresh threshold configured, if the rate limiter is
// exhausted, or if the bulkhead is saturated, MaybeArm drops the
// schedule — scheduling is best-effort — and the entry will be
// refreshed by a normal miss once it actually expires.
func (s *Scheduler) MaybeArm(
	ctx context.Context,
	key string,
	desc policy.Descriptor,
	remaining time.Duration,
	rebuild func(context.Context) (any, error),
) {
	if desc.RefreshThreshold.IsZero() {
		return
	}
	trigger := desc.RefreshThreshold.TriggerAt(desc.Duration)
	if trigger <= 0 || remaining >= trigger {
		return
	}
	if !s.limiter.Allow() {
		s.logf(ctx, "refresh-ahead rate limit exceeded, dropping schedule for %s", key)
		return
	}

	go s.runRebuild(key, desc, rebuild)
}

func (s *Scheduler) runRebuild(key string, desc policy.Descriptor, rebuild func(context.Context) (any, error)) {
	bgCtx := context.Background()
	if err := s.bulkhead.Acquire(bgCtx); err != nil {
		s.logf(bgCtx, "refresh-ahead bulkhead saturated, dropping schedule for %s", key)
		return
	}
	defer s.bulkhead.Release()

	start := s.now()
	_, _, _ = s.coordinator.ComputeOnce(bgCtx, key, policy.StampedeProbabilistic, false,
		func(ctx context.Context) (any, error) { return rebuild(ctx) })
	s.coordinator.ObserveBuild(desc.MethodID, s.now().Sub(start))
}

func (s *Scheduler) logf(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Warn(ctx, msg, observe.Field{Key: "args", Value: args})
}
