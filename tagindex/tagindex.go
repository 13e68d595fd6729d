// Package tagindex maintains the bidirectional key↔tag mapping used for
// surgical invalidation: given a tag, find every key that carries it;
// given a key, find every tag it carries. Both directions are sharded to
// bound lock contention, and the total mapping count is bounded by a
// configurable budget.
package tagindex

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const defaultShardCount = 16

// Stats exposes relaxed-read counters: Associations rises and falls with
// the live pair count, Dropped is monotonic.
type Stats struct {
	Associations atomic.Int64 // current (key,tag) pair count
	Dropped      atomic.Int64 // associations refused once the budget was hit
}

// Index is the concurrency-safe key↔tag mapping.
//
// Deliberately built on plain sync.Mutex-guarded shard maps rather than
// sync.Map: iteration order and lock scope stay explicit and predictable,
// which KeysForTag's callers (bulk invalidation) depend on for bounded
// latency under contention.
type Index struct {
	shardCount int
	maxMappings int64

	tagShards []*tagShard // tag -> set of keys
	keyShards []*keyShard // key -> set of tags

	mappingCount atomic.Int64
	stats        Stats
}

type tagShard struct {
	mu   sync.Mutex
	keys map[string]map[string]struct{} // tag -> key set
}

type keyShard struct {
	mu   sync.Mutex
	tags map[string]map[string]struct{} // key -> tag set
}

// New creates an Index with the default shard count and maxMappings as
// the total (key,tag) pair budget. maxMappings <= 0 means unbounded.
func New(maxMappings int64) *Index {
	return NewWithShards(maxMappings, defaultShardCount)
}

// NewWithShards creates an Index with an explicit shard count, mainly
// for tests exercising shard-boundary behavior.
func NewWithShards(maxMappings int64, shardCount int) *Index {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	idx := &Index{shardCount: shardCount, maxMappings: maxMappings}
	idx.tagShards = make([]*tagShard, shardCount)
	idx.keyShards = make([]*keyShard, shardCount)
	for i := range idx.tagShards {
		idx.tagShards[i] = &tagShard{keys: make(map[string]map[string]struct{})}
	}
	for i := range idx.keyShards {
		idx.keyShards[i] = &keyShard{tags: make(map[string]map[string]struct{})}
	}
	return idx
}

func fnvShard(s string, shardCount int) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32()) % shardCount
}

func (idx *Index) tagShardFor(tag string) *tagShard {
	return idx.tagShards[fnvShard(tag, idx.shardCount)]
}

func (idx *Index) keyShardFor(key string) *keyShard {
	return idx.keyShards[fnvShard(key, idx.shardCount)]
}

// Associate records key as carrying each of tags. It returns the number
// of new (key,tag) pairs that were refused because maxMappings was
// already reached; already-existing (key,tag) pairs never count against
// the budget and are not dropped.
func (idx *Index) Associate(key string, tags []string) (dropped int) {
	for _, tag := range tags {
		if idx.associateOne(key, tag) {
			continue
		}
		dropped++
	}
	if dropped > 0 {
		idx.stats.Dropped.Add(int64(dropped))
	}
	return dropped
}

// associateOne returns true if the (key,tag) pair is present after the
// call (either it already existed, or there was budget to add it).
func (idx *Index) associateOne(key, tag string) bool {
	ks := idx.keyShardFor(key)
	ks.mu.Lock()
	tagSet, ok := ks.tags[key]
	if ok {
		if _, already := tagSet[tag]; already {
			ks.mu.Unlock()
			return true
		}
	}
	ks.mu.Unlock()

	if idx.maxMappings > 0 && idx.mappingCount.Load() >= idx.maxMappings {
		return false
	}

	ks.mu.Lock()
	if ks.tags[key] == nil {
		ks.tags[key] = make(map[string]struct{})
	}
	if _, already := ks.tags[key][tag]; already {
		ks.mu.Unlock()
		return true
	}
	ks.tags[key][tag] = struct{}{}
	ks.mu.Unlock()

	ts := idx.tagShardFor(tag)
	ts.mu.Lock()
	if ts.keys[tag] == nil {
		ts.keys[tag] = make(map[string]struct{})
	}
	ts.keys[tag][key] = struct{}{}
	ts.mu.Unlock()

	idx.mappingCount.Add(1)
	idx.stats.Associations.Add(1)
	return true
}

// Dissociate removes key's association with each of tags, if present.
func (idx *Index) Dissociate(key string, tags []string) {
	for _, tag := range tags {
		idx.dissociateOne(key, tag)
	}
}

func (idx *Index) dissociateOne(key, tag string) {
	ks := idx.keyShardFor(key)
	ks.mu.Lock()
	tagSet := ks.tags[key]
	if tagSet == nil {
		ks.mu.Unlock()
		return
	}
	if _, ok := tagSet[tag]; !ok {
		ks.mu.Unlock()
		return
	}
	delete(tagSet, tag)
	emptyKeyBucket := len(tagSet) == 0
	if emptyKeyBucket {
		// Re-check under lock before deleting: another goroutine may have
		// added a tag back between the len() check and here, which is why
		// this happens inside the same critical section rather than after.
		if len(ks.tags[key]) == 0 {
			delete(ks.tags, key)
		}
	}
	ks.mu.Unlock()

	ts := idx.tagShardFor(tag)
	ts.mu.Lock()
	if keySet := ts.keys[tag]; keySet != nil {
		delete(keySet, key)
		if len(keySet) == 0 {
			// Check-then-remove race fix: re-verify emptiness under the
			// bucket's own lock immediately before deleting the bucket,
			// so a concurrent Associate that just repopulated it can't be
			// wiped out by this delete.
			if len(ts.keys[tag]) == 0 {
				delete(ts.keys, tag)
			}
		}
	}
	ts.mu.Unlock()

	idx.mappingCount.Add(-1)
	idx.stats.Associations.Add(-1)
}

// DropKey removes every tag association for key.
func (idx *Index) DropKey(key string) {
	idx.Dissociate(key, idx.TagsForKey(key))
}

// KeysForTag returns a snapshot of every key currently associated with
// tag. The returned slice is a copy, safe to range over without holding
// any lock.
func (idx *Index) KeysForTag(tag string) []string {
	ts := idx.tagShardFor(tag)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	keySet := ts.keys[tag]
	out := make([]string, 0, len(keySet))
	for k := range keySet {
		out = append(out, k)
	}
	return out
}

// TagsForKey returns a snapshot of every tag currently associated with
// key.
func (idx *Index) TagsForKey(key string) []string {
	ks := idx.keyShardFor(key)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	tagSet := ks.tags[key]
	out := make([]string, 0, len(tagSet))
	for t := range tagSet {
		out = append(out, t)
	}
	return out
}

// Stats returns a point-in-time read of the index's counters.
func (idx *Index) Stats() (associations, dropped int64) {
	return idx.stats.Associations.Load(), idx.stats.Dropped.Load()
}
