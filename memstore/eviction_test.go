package memstore

import "testing"

func makeShard(entries map[string]*entry) *shard {
	return &shard{entries: entries}
}

func TestPreciseScan_TieBrokenByInsertionOrder(t *testing.T) {
	older := newEntry(nil, nil, 100, 0, 0)
	newer := newEntry(nil, nil, 200, 0, 0)
	older.accessCount.Store(5)
	newer.accessCount.Store(5) // tie on the metric

	sh := makeShard(map[string]*entry{"older": older, "newer": newer})
	p := preciseScan{metric: accessCountMetric}

	key, ok := p.SelectVictim(sh, 0)
	if !ok || key != "older" {
		t.Fatalf("SelectVictim = (%q, %v), want (older, true) — ties break by insertion order", key, ok)
	}
}

func TestPreciseScan_EmptyShard(t *testing.T) {
	p := preciseScan{metric: accessCountMetric}
	if _, ok := p.SelectVictim(makeShard(nil), 0); ok {
		t.Fatal("empty shard must report no victim, not a zero-value key")
	}
}

func TestSampled_FullScanBelowThreshold(t *testing.T) {
	// count (3) <= 2*sampleSize (4): must behave like a full scan, so the
	// true minimum is always found regardless of map iteration order.
	e1 := newEntry(nil, nil, 0, 0, 0)
	e2 := newEntry(nil, nil, 0, 0, 0)
	e3 := newEntry(nil, nil, 0, 0, 0)
	e1.lastAccess.Store(30)
	e2.lastAccess.Store(10) // the true minimum
	e3.lastAccess.Store(20)

	sh := makeShard(map[string]*entry{"a": e1, "b": e2, "c": e3})
	p := sampled{sampleSize: 2, metric: lastAccessMetric}

	for i := 0; i < 20; i++ {
		key, ok := p.SelectVictim(sh, 0)
		if !ok || key != "b" {
			t.Fatalf("run %d: SelectVictim = (%q, %v), want (b, true)", i, key, ok)
		}
	}
}

func TestRandomPolicy_NeverPicksMissingKeyFromEmptyShard(t *testing.T) {
	p := randomPolicy{}
	if _, ok := p.SelectVictim(makeShard(nil), 0); ok {
		t.Fatal("empty shard must report no victim")
	}
}

func TestRandomPolicy_AlwaysReturnsAnExistingKey(t *testing.T) {
	entries := map[string]*entry{}
	for i := 0; i < 10; i++ {
		entries[string(rune('a'+i))] = newEntry(nil, nil, 0, 0, 0)
	}
	sh := makeShard(entries)
	p := randomPolicy{}

	for i := 0; i < 50; i++ {
		key, ok := p.SelectVictim(sh, 0)
		if !ok {
			t.Fatal("non-empty shard must always produce a candidate")
		}
		if _, present := entries[key]; !present {
			t.Fatalf("SelectVictim returned key %q not present in the shard", key)
		}
	}
}
