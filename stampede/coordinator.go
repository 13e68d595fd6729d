package stampede

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/cachecore/policy"
)

// DistributedLocker is the L2-backed distributed lock a Coordinator hands
// off to under policy.StampedeDistributedLock. Implementations (e.g.
// providers.RedisProvider via SETNX-with-TTL) return ok=false, err=nil on
// a clean acquisition failure (lock held by a peer) so the caller can fall
// back to reading a colder tier rather than treating it as an error.
type DistributedLocker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// inflight tracks the waiters attached to one in-progress factory call,
// plus the context the factory itself runs under. The run context is
// detached from any single waiter's context (built from
// context.Background, not a caller's ctx) so that one waiter's
// cancellation never by itself tears down a computation other waiters
// are still depending on.
type inflight struct {
	runCtx context.Context
	cancel context.CancelFunc
	waiters int32
}

// Coordinator guarantees at-most-one concurrent factory invocation per key
// within the process (policy.StampedeSingleFlight, the default), adds
// probabilistic early refresh on top of it (policy.StampedeProbabilistic,
// always routed through the same single-flight path — see DESIGN.md's
// Open Question 1), and hands off to a DistributedLocker for
// policy.StampedeDistributedLock.
type Coordinator struct {
	group  singleflight.Group
	locker DistributedLocker

	mu        sync.Mutex
	inflights map[string]*inflight

	ewma *buildTimeTracker
}

// New creates a Coordinator. locker may be nil if
// policy.StampedeDistributedLock is never used.
func New(locker DistributedLocker) *Coordinator {
	return &Coordinator{
		locker:    locker,
		inflights: make(map[string]*inflight),
		ewma:      newBuildTimeTracker(),
	}
}

// ComputeOnce runs factory for key, deduplicating concurrent callers per
// mode. It returns the value, any error from the winning attempt, and
// whether this caller's result was shared with at least one other waiter.
//
// policy.StampedeNone bypasses deduplication entirely.
// policy.StampedeSingleFlight and policy.StampedeProbabilistic both dedup
// via the singleflight.Group (probabilistic early refresh is triggered by
// the caller — see ShouldRefreshEarly in probabilistic.go — and always
// reuses this same path). policy.StampedeDistributedLock attempts the injected DistributedLocker first; on a
// clean acquisition failure it returns ErrLockUnavailable so the caller
// (hybrid.Manager) can fall back to a colder tier instead of calling
// factory.
//
// cancelSafe controls whether this caller's own cancellation, if it is
// the last waiter remaining, aborts the in-flight factory. When false
// (the default), the factory always runs to completion regardless of
// waiter cancellation.
func (c *Coordinator) ComputeOnce(
	ctx context.Context,
	key string,
	mode policy.StampedeMode,
	cancelSafe bool,
	factory func(context.Context) (any, error),
) (any, error, bool) {
	switch mode {
	case policy.StampedeNone:
		v, err := factory(ctx)
		return v, err, false
	case policy.StampedeDistributedLock:
		return c.computeDistributed(ctx, key, cancelSafe, factory)
	default: // StampedeSingleFlight, StampedeProbabilistic
		return c.computeSingleFlight(ctx, key, cancelSafe, factory)
	}
}

func (c *Coordinator) computeSingleFlight(
	ctx context.Context,
	key string,
	cancelSafe bool,
	factory func(context.Context) (any, error),
) (any, error, bool) {
	fl := c.attachWaiter(key)

	resultCh := c.group.DoChan(key, func() (any, error) {
		return factory(fl.runCtx)
	})

	select {
	case res := <-resultCh:
		// Factory already completed; cancelling the run context on the
		// last detach only releases its resources.
		c.detachWaiter(key, true)
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		c.detachWaiter(key, cancelSafe)
		return nil, ctx.Err(), false
	}
}

// attachWaiter registers the caller as a waiter on key's in-flight
// computation, creating it (and its detached run context) if this is the
// first caller.
func (c *Coordinator) attachWaiter(key string) *inflight {
	c.mu.Lock()
	defer c.mu.Unlock()

	fl, ok := c.inflights[key]
	if !ok {
		runCtx, cancel := context.WithCancel(context.Background())
		fl = &inflight{runCtx: runCtx, cancel: cancel}
		c.inflights[key] = fl
	}
	fl.waiters++
	return fl
}

// detachWaiter removes one waiter from key's in-flight entry. Once the
// last waiter detaches, the entry is deleted; cancelOnEmpty controls
// whether that last detach also cancels the run context (always done
// once the factory has returned, and on waiter cancellation only when
// the policy marks the factory cancel-safe).
func (c *Coordinator) detachWaiter(key string, cancelOnEmpty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fl, ok := c.inflights[key]
	if !ok {
		return
	}
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	delete(c.inflights, key)
	if cancelOnEmpty {
		fl.cancel()
	}
}

func (c *Coordinator) computeDistributed(
	ctx context.Context,
	key string,
	cancelSafe bool,
	factory func(context.Context) (any, error),
) (any, error, bool) {
	if c.locker == nil {
		return c.computeSingleFlight(ctx, key, cancelSafe, factory)
	}
	unlock, ok, err := c.locker.TryLock(ctx, key)
	if err != nil {
		return nil, err, false
	}
	if !ok {
		return nil, ErrLockUnavailable, false
	}
	defer unlock()
	return c.computeSingleFlight(ctx, key, cancelSafe, factory)
}

// waiterCount reports the current number of waiters attached to key, for
// tests.
func (c *Coordinator) waiterCount(key string) int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fl, ok := c.inflights[key]; ok {
		return fl.waiters
	}
	return 0
}
