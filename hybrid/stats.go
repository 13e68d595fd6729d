package hybrid

import "sync/atomic"

// Stats are additive, monotonic counters for the hybrid manager's own
// decisions (tier routing, promotion, write-behind); per-tier hit/miss
// accounting independent of what memstore.Store and providers.Provider
// already track for themselves.
type Stats struct {
	L1Hits   atomic.Int64
	L1Misses atomic.Int64

	L2Hits     atomic.Int64
	L2Misses   atomic.Int64
	L2Failures atomic.Int64

	L3Hits     atomic.Int64
	L3Misses   atomic.Int64
	L3Failures atomic.Int64

	Promotions atomic.Int64

	Builds      atomic.Int64
	BuildErrors atomic.Int64

	WriteBehindQueued        atomic.Int64
	WriteBehindFallbackSync  atomic.Int64
	WriteBehindFailures      atomic.Int64
	BackplaneInvalidations   atomic.Int64
}

// StatsSnapshot is a point-in-time read of Stats, safe to copy.
type StatsSnapshot struct {
	L1Hits, L1Misses                                       int64
	L2Hits, L2Misses, L2Failures                           int64
	L3Hits, L3Misses, L3Failures                           int64
	Promotions                                             int64
	Builds, BuildErrors                                    int64
	WriteBehindQueued, WriteBehindFallbackSync             int64
	WriteBehindFailures, BackplaneInvalidations            int64
}

// Stats returns a point-in-time read of the manager's counters.
func (m *Manager) Stats() StatsSnapshot {
	return StatsSnapshot{
		L1Hits:                  m.stats.L1Hits.Load(),
		L1Misses:                m.stats.L1Misses.Load(),
		L2Hits:                  m.stats.L2Hits.Load(),
		L2Misses:                m.stats.L2Misses.Load(),
		L2Failures:              m.stats.L2Failures.Load(),
		L3Hits:                  m.stats.L3Hits.Load(),
		L3Misses:                m.stats.L3Misses.Load(),
		L3Failures:              m.stats.L3Failures.Load(),
		Promotions:              m.stats.Promotions.Load(),
		Builds:                  m.stats.Builds.Load(),
		BuildErrors:             m.stats.BuildErrors.Load(),
		WriteBehindQueued:       m.stats.WriteBehindQueued.Load(),
		WriteBehindFallbackSync: m.stats.WriteBehindFallbackSync.Load(),
		WriteBehindFailures:     m.stats.WriteBehindFailures.Load(),
		BackplaneInvalidations:  m.stats.BackplaneInvalidations.Load(),
	}
}
