package stampede

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultBeta is the xfetch-style aggressiveness constant: higher values
// make early refresh more likely as an entry approaches expiry.
const DefaultBeta = 1.0

// buildTimeTracker keeps a rolling mean factory build duration per method
// id, used to compute the probabilistic early-refresh threshold. An
// exponentially-weighted moving average stands in for a precise
// histogram; a rolling average is accurate enough here.
type buildTimeTracker struct {
	mu    sync.Mutex
	means map[string]float64 // nanoseconds
}

func newBuildTimeTracker() *buildTimeTracker {
	return &buildTimeTracker{means: make(map[string]float64)}
}

const ewmaAlpha = 0.2

// Observe records a completed factory build's duration for methodID.
func (t *buildTimeTracker) Observe(methodID string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.means[methodID]
	if !ok {
		t.means[methodID] = float64(d)
		return
	}
	t.means[methodID] = ewmaAlpha*float64(d) + (1-ewmaAlpha)*cur
}

// Mean returns the current rolling mean build duration for methodID, or
// zero if none has been observed yet.
func (t *buildTimeTracker) Mean(methodID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.means[methodID])
}

// ObserveBuild records a completed factory build's duration for methodID,
// feeding the probabilistic early-refresh estimator.
func (c *Coordinator) ObserveBuild(methodID string, d time.Duration) {
	c.ewma.Observe(methodID, d)
}

// ShouldRefreshEarly computes the probabilistic early-refresh
// decision: p = exp(-β · remaining / meanBuildTime). A reader nearing
// expiration draws against p and, if it falls under it, should trigger an
// early recompute (routed through ComputeOnce under
// policy.StampedeProbabilistic so concurrent refreshes still collapse to
// one).
//
// When no build time has been observed yet for methodID, refresh is never
// triggered early (there is nothing to estimate against).
func (c *Coordinator) ShouldRefreshEarly(methodID string, remaining time.Duration, beta float64) bool {
	if remaining <= 0 {
		return true
	}
	mean := c.ewma.Mean(methodID)
	if mean <= 0 {
		return false
	}
	if beta <= 0 {
		beta = DefaultBeta
	}
	p := math.Exp(-beta * float64(remaining) / float64(mean))
	return rand.Float64() < p
}
