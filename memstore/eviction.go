package memstore

import (
	"math/rand/v2"
	"sort"
)

// EvictionPolicy selects which Policy implementation a Store uses.
type EvictionPolicy int

const (
	LRUApprox EvictionPolicy = iota
	LRUPrecise
	LFUApprox
	LFUPrecise
	FIFOPrecise
	TTLApprox
	TTLPrecise
	Random
)

// Policy selects one victim key from shard to evict. Called with
// shard.mu already held by the caller.
type Policy interface {
	SelectVictim(sh *shard, now int64) (key string, ok bool)
}

func newPolicy(p EvictionPolicy, sampleSize int) Policy {
	switch p {
	case LRUPrecise:
		return preciseScan{metric: lastAccessMetric, maximize: false}
	case LFUApprox:
		return sampled{sampleSize: sampleSize, metric: accessCountMetric, maximize: false}
	case LFUPrecise:
		return preciseScan{metric: accessCountMetric, maximize: false}
	case FIFOPrecise:
		return preciseScan{metric: createdAtMetric, maximize: false}
	case TTLApprox:
		return sampled{sampleSize: sampleSize, metric: expiresAtMetric, maximize: false}
	case TTLPrecise:
		return preciseScan{metric: expiresAtMetric, maximize: false}
	case Random:
		return randomPolicy{}
	default: // LRUApprox
		return sampled{sampleSize: sampleSize, metric: lastAccessMetric, maximize: false}
	}
}

type metricFn func(e *entry) int64

func lastAccessMetric(e *entry) int64  { return e.lastAccess.Load() }
func accessCountMetric(e *entry) int64 { return e.accessCount.Load() }
func createdAtMetric(e *entry) int64   { return e.createdAt }
func expiresAtMetric(e *entry) int64   { return e.expiresAt }

// sampled implements the approximate policies: LRU, LFU, and TTL
// approximate variants all share this sampling protocol, differing only
// in which metric picks the "oldest" candidate. When the shard is small
// (count <= 2*sampleSize) it scans everything rather than under-sampling
// a shard that's already cheap to scan in full.
type sampled struct {
	sampleSize int
	metric     metricFn
	maximize   bool // true: evict the max-metric entry; false: evict the min
}

func (p sampled) SelectVictim(sh *shard, now int64) (string, bool) {
	n := len(sh.entries)
	if n == 0 {
		return "", false
	}

	maxInspection := 10 * p.sampleSize
	fullScan := n <= 2*p.sampleSize

	var bestKey string
	var bestMetric int64
	haveBest := false
	inspected := 0

	for k, e := range sh.entries {
		if !fullScan {
			if inspected >= p.sampleSize || inspected >= maxInspection {
				break
			}
		}
		inspected++

		m := p.metric(e)
		if !haveBest || (p.maximize && m > bestMetric) || (!p.maximize && m < bestMetric) {
			bestKey, bestMetric, haveBest = k, m, true
		}
	}

	return bestKey, haveBest
}

// preciseScan implements the precise policies: a full O(N log N) sort by
// metric, ties broken by insertion order (createdAt ascending), then the
// globally-minimum entry evicted — guaranteed correctness, at the cost
// of a full scan.
type preciseScan struct {
	metric   metricFn
	maximize bool
}

func (p preciseScan) SelectVictim(sh *shard, now int64) (string, bool) {
	type candidate struct {
		key       string
		metric    int64
		createdAt int64
	}
	candidates := make([]candidate, 0, len(sh.entries))
	for k, e := range sh.entries {
		candidates = append(candidates, candidate{key: k, metric: p.metric(e), createdAt: e.createdAt})
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].metric != candidates[j].metric {
			if p.maximize {
				return candidates[i].metric > candidates[j].metric
			}
			return candidates[i].metric < candidates[j].metric
		}
		return candidates[i].createdAt < candidates[j].createdAt
	})
	return candidates[0].key, true
}

// randomPolicy reservoir-samples up to min(N/4, 100) candidates and
// evicts one of them uniformly at random.
type randomPolicy struct{}

func (randomPolicy) SelectVictim(sh *shard, now int64) (string, bool) {
	n := len(sh.entries)
	if n == 0 {
		return "", false
	}
	limit := n / 4
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 1
	}

	reservoir := make([]string, 0, limit)
	seen := 0
	for k := range sh.entries {
		seen++
		if len(reservoir) < limit {
			reservoir = append(reservoir, k)
			continue
		}
		j := rand.IntN(seen)
		if j < limit {
			reservoir[j] = k
		}
	}
	if len(reservoir) == 0 {
		return "", false
	}
	return reservoir[rand.IntN(len(reservoir))], true
}
