// Package memstore implements the L1 in-process key→entry map: lazy
// expiry, pluggable eviction (LRU/LFU/TTL in approximate-sampled and
// precise variants, FIFO precise only, and Random), size accounting, and
// a background cleanup sweep.
package memstore

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/cachecore/tagindex"
)

const defaultShardCount = 16

// Stats are additive counters; Hits, Misses, Evictions and
// DegenerateEvictions are monotonic, while Bytes tracks the current size
// estimate and falls as entries leave. Reads are relaxed (no cross-field
// atomicity is implied or required).
type Stats struct {
	Hits               atomic.Int64
	Misses             atomic.Int64
	Evictions          atomic.Int64
	DegenerateEvictions atomic.Int64
	Bytes              atomic.Int64
}

// Config configures a Store.
type Config struct {
	MaxEntries      int64 // per-store total across all shards; 0 = unbounded
	MaxBytes        int64 // 0 = unbounded
	SizeMode        SizeMode
	Policy          EvictionPolicy
	SampleSize      int // approximate-policy sample size; default 8
	CleanupInterval time.Duration
	CleanupBatchSize int // expired entries removed per shard per tick; default 64
	FastPathEnabled bool
	MaxTagMappings  int64 // forwarded to the internal tagindex.Index
	ShardCount      int   // default 16

	// DisableBackgroundCleanup skips starting the periodic sweep
	// goroutine; expired entries are then removed only lazily on read.
	DisableBackgroundCleanup bool

	// DisableStatistics skips hit/miss counter updates on the read path.
	// Byte accounting still runs (eviction budgets depend on it).
	DisableStatistics bool

	// FastPathTrackMetrics keeps hit counters updating even on the fast
	// path. Off by default: the fast path exists to skip that work.
	FastPathTrackMetrics bool

	// EvictionSamplePercentage, when > 0 alongside MaxEntries, derives
	// SampleSize as that percentage of MaxEntries (minimum 2) instead of
	// using SampleSize directly.
	EvictionSamplePercentage float64

	// SamplingPercentage bounds how much of each shard the SizeAccurate
	// sweep re-estimates per tick, as a percentage. Default 100.
	SamplingPercentage float64

	// DisableTagIndex stops maintaining the key↔tag index; RemoveByTag
	// then falls back to a full scan comparing each entry's tag slice.
	// Slower invalidation, no mapping-budget bookkeeping.
	DisableTagIndex bool

	// OnEvict, when non-nil, is called with the key of every entry
	// removed by the eviction policy (not by lazy expiry, explicit
	// removes, or the cleanup sweep). Called outside any shard lock.
	OnEvict func(key string)
}

func (c Config) withDefaults() Config {
	if c.EvictionSamplePercentage > 0 && c.MaxEntries > 0 {
		c.SampleSize = int(float64(c.MaxEntries) * c.EvictionSamplePercentage / 100)
		if c.SampleSize < 2 {
			c.SampleSize = 2
		}
	}
	if c.SampleSize <= 0 {
		c.SampleSize = 8
	}
	if c.SamplingPercentage <= 0 || c.SamplingPercentage > 100 {
		c.SamplingPercentage = 100
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.CleanupBatchSize <= 0 {
		c.CleanupBatchSize = 64
	}
	if c.ShardCount <= 0 {
		c.ShardCount = defaultShardCount
	}
	return c
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Store is the concurrency-safe L1 memory cache.
type Store struct {
	cfg    Config
	shards []*shard
	tags   *tagindex.Index
	policy Policy
	stats  Stats

	totalEntries atomic.Int64
	shardCursor  atomic.Int64 // round-robins eviction across shards

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStore creates a Store and starts its background cleanup goroutine,
// bound to ctx: cancelling ctx (or calling Close) stops the sweep.
func NewStore(ctx context.Context, cfg Config) *Store {
	cfg = cfg.withDefaults()
	s := &Store{
		cfg:    cfg,
		shards: make([]*shard, cfg.ShardCount),
		tags:   tagindex.New(cfg.MaxTagMappings),
		policy: newPolicy(cfg.Policy, cfg.SampleSize),
		done:   make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	if cfg.DisableBackgroundCleanup {
		close(s.done)
	} else {
		go s.cleanupLoop(runCtx)
	}
	return s
}

// Close stops the background cleanup goroutine and waits for it to exit,
// guaranteeing release of its resources on shutdown.
func (s *Store) Close() {
	s.cancel()
	<-s.done
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[int(h.Sum32())%len(s.shards)]
}

func now() int64 { return time.Now().UnixNano() }

// Get returns the value for key, or (nil, false) on miss or lazy expiry.
//
// Get is GetTracked without the tags, and follows the same fast-path
// rules.
func (s *Store) Get(key string) ([]byte, bool) {
	v, _, ok := s.GetTracked(key)
	return v, ok
}

// GetTracked returns the value and the entry's tags, so callers (e.g.
// the hybrid manager) can decide whether to arm a refresh-ahead timer.
// Misses are always counted. FastPath: when enabled and the entry
// qualifies (see Store.fastPathEligible), a hit skips the access-time
// update and counts the hit only if FastPathTrackMetrics is set.
func (s *Store) GetTracked(key string) ([]byte, []string, bool) {
	sh := s.shardFor(key)
	t := now()

	sh.mu.Lock()
	e, ok := sh.entries[key]
	if !ok {
		sh.mu.Unlock()
		s.countMiss()
		return nil, nil, false
	}
	if e.expired(t) {
		delete(sh.entries, key)
		sh.mu.Unlock()
		s.removeSideEffects(key, e)
		s.countMiss()
		return nil, nil, false
	}
	sh.mu.Unlock()

	if s.cfg.FastPathEnabled && s.fastPathEligible(e) {
		if s.cfg.FastPathTrackMetrics {
			s.countHit()
		}
		return e.value, e.tags, true
	}

	e.touch(t)
	s.countHit()
	return e.value, e.tags, true
}

func (s *Store) countHit() {
	if !s.cfg.DisableStatistics {
		s.stats.Hits.Add(1)
	}
}

func (s *Store) countMiss() {
	if !s.cfg.DisableStatistics {
		s.stats.Misses.Add(1)
	}
}

// fastPathEligible decides at the store level whether a hit may skip
// bookkeeping: an entry with no tags has nothing to track.
func (s *Store) fastPathEligible(e *entry) bool {
	return len(e.tags) == 0
}

// Set stores value under key with the given ttl (0 = no expiry) and
// tags, evicting as needed to satisfy MaxEntries/MaxBytes.
func (s *Store) Set(key string, value []byte, ttl time.Duration, tags []string) {
	t := now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = t + int64(ttl)
	}
	size := estimateSize(s.cfg.SizeMode, value, tags)

	sh := s.shardFor(key)
	sh.mu.Lock()
	old, existed := sh.entries[key]
	if existed {
		s.stats.Bytes.Add(-old.size)
	}
	sh.entries[key] = newEntry(value, tags, t, expiresAt, size)
	sh.mu.Unlock()

	if !existed {
		s.totalEntries.Add(1)
	}
	s.stats.Bytes.Add(size)
	if !s.cfg.DisableTagIndex {
		s.tags.Associate(key, tags)
	}

	s.evictIfNeeded()
}

// Remove deletes key, if present. Idempotent.
func (s *Store) Remove(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.entries[key]
	if ok {
		delete(sh.entries, key)
	}
	sh.mu.Unlock()
	if ok {
		s.removeSideEffects(key, e)
	}
}

// Clear removes every entry from every shard (the backplane's
// clear_all message, or an administrative reset).
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		removed := sh.entries
		sh.entries = make(map[string]*entry)
		sh.mu.Unlock()
		for k, e := range removed {
			s.removeSideEffects(k, e)
		}
	}
}

// RemoveByTag removes every entry associated with tag, via the tag
// index when maintained, or a full scan when DisableTagIndex is set.
func (s *Store) RemoveByTag(tag string) {
	if !s.cfg.DisableTagIndex {
		for _, key := range s.tags.KeysForTag(tag) {
			s.Remove(key)
		}
		return
	}

	for _, sh := range s.shards {
		sh.mu.Lock()
		var victims []string
		var removed []*entry
		for k, e := range sh.entries {
			for _, t := range e.tags {
				if t == tag {
					victims = append(victims, k)
					removed = append(removed, e)
					break
				}
			}
		}
		for _, k := range victims {
			delete(sh.entries, k)
		}
		sh.mu.Unlock()
		for i, k := range victims {
			s.removeSideEffects(k, removed[i])
		}
	}
}

// Exists reports whether key is present and unexpired, without updating
// access statistics.
func (s *Store) Exists(key string) bool {
	sh := s.shardFor(key)
	t := now()
	sh.mu.Lock()
	e, ok := sh.entries[key]
	alive := ok && !e.expired(t)
	sh.mu.Unlock()
	return alive
}

// Extend pushes key's absolute expiration out to now+ttl (sliding
// expiration). Reports whether the entry existed and was still live.
func (s *Store) Extend(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	sh := s.shardFor(key)
	t := now()
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	if !ok || e.expired(t) {
		return false
	}
	e.expiresAt = t + int64(ttl)
	return true
}

// Remaining reports the time left before key's entry lazily expires,
// without updating access statistics. ok is false if key is absent or
// already expired; a zero duration with ok true means the entry never
// expires (ttl was 0 at Set time).
func (s *Store) Remaining(key string) (remaining time.Duration, ok bool) {
	sh := s.shardFor(key)
	t := now()
	sh.mu.Lock()
	e, exists := sh.entries[key]
	sh.mu.Unlock()
	if !exists || e.expired(t) {
		return 0, false
	}
	if e.expiresAt == 0 {
		return 0, true
	}
	return time.Duration(e.expiresAt - t), true
}

// StatsSnapshot is a point-in-time read of Store.Stats, safe to copy.
type StatsSnapshot struct {
	Hits, Misses, Evictions, DegenerateEvictions, Bytes int64
	TagMappings, TagMappingsDropped                     int64
}

// Stats returns a point-in-time read of the store's counters.
func (s *Store) Stats() StatsSnapshot {
	mappings, dropped := s.tags.Stats()
	return StatsSnapshot{
		Hits:                s.stats.Hits.Load(),
		Misses:              s.stats.Misses.Load(),
		Evictions:           s.stats.Evictions.Load(),
		DegenerateEvictions: s.stats.DegenerateEvictions.Load(),
		Bytes:               s.stats.Bytes.Load(),
		TagMappings:         mappings,
		TagMappingsDropped:  dropped,
	}
}

// removeSideEffects un-registers key's tag associations and subtracts
// its size estimate. Called whenever an entry leaves a shard's map for
// any reason (explicit remove, lazy expiry, eviction, cleanup sweep).
func (s *Store) removeSideEffects(key string, e *entry) {
	s.tags.DropKey(key)
	s.stats.Bytes.Add(-e.size)
	s.totalEntries.Add(-1)
}

// overBudget reports whether the store currently violates MaxEntries or
// MaxBytes (either limit of 0 means unbounded for that dimension).
func (s *Store) overBudget() bool {
	if s.cfg.MaxEntries > 0 && s.totalEntries.Load() > s.cfg.MaxEntries {
		return true
	}
	if s.cfg.MaxBytes > 0 && s.stats.Bytes.Load() > s.cfg.MaxBytes {
		return true
	}
	return false
}

// evictIfNeeded evicts at least one entry per overflow trigger, looping
// until the store is back under budget or every shard has been tried
// with no candidate found (the degenerate case, recorded in
// DegenerateEvictions rather than spinning forever).
func (s *Store) evictIfNeeded() {
	for s.overBudget() {
		if !s.evictOnce() {
			s.stats.DegenerateEvictions.Add(1)
			return
		}
	}
}

// evictOnce selects one shard (round-robin) and asks the configured
// Policy for a victim; on a miss it tries every other shard in turn
// before giving up, so a skewed key distribution doesn't starve
// eviction.
func (s *Store) evictOnce() bool {
	start := int(s.shardCursor.Add(1)) % len(s.shards)
	t := now()

	for i := 0; i < len(s.shards); i++ {
		idx := (start + i) % len(s.shards)
		sh := s.shards[idx]

		sh.mu.Lock()
		key, ok := s.policy.SelectVictim(sh, t)
		var victim *entry
		if ok {
			victim = sh.entries[key]
			delete(sh.entries, key)
		}
		sh.mu.Unlock()

		if ok {
			s.removeSideEffects(key, victim)
			s.stats.Evictions.Add(1)
			if s.cfg.OnEvict != nil {
				s.cfg.OnEvict(key)
			}
			return true
		}
	}
	return false
}

func (s *Store) cleanupLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	t := now()
	for _, sh := range s.shards {
		s.sweepShard(sh, t)
	}
}

func (s *Store) sweepShard(sh *shard, t int64) {
	sh.mu.Lock()
	victims := make([]string, 0, s.cfg.CleanupBatchSize)
	removed := make([]*entry, 0, s.cfg.CleanupBatchSize)
	recomputeBudget := 0
	if s.cfg.SizeMode == SizeAccurate {
		recomputeBudget = int(float64(len(sh.entries)) * s.cfg.SamplingPercentage / 100)
	}
	for k, e := range sh.entries {
		if e.expired(t) {
			if len(victims) < s.cfg.CleanupBatchSize {
				victims = append(victims, k)
				removed = append(removed, e)
			}
			continue
		}
		if recomputeBudget > 0 {
			recomputeBudget--
			if n := estimateSize(s.cfg.SizeMode, e.value, e.tags); n != e.size {
				s.stats.Bytes.Add(n - e.size)
				e.size = n
			}
		}
	}
	for _, k := range victims {
		delete(sh.entries, k)
	}
	sh.mu.Unlock()

	for i, k := range victims {
		s.removeSideEffects(k, removed[i])
	}
}
