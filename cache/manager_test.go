package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/cachecore/keygen"
	"github.com/jonwraymond/cachecore/memstore"
	"github.com/jonwraymond/cachecore/policy"
)

func policyWithDuration(d time.Duration) policy.Descriptor {
	return policy.Descriptor{Duration: d}
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = time.Minute
	}
	m, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestGetOrCreate_ColdMissBuildsOnce(t *testing.T) {
	m := newTestManager(t, Config{})

	calls := atomic.Int64{}
	v, err := m.GetOrCreate(context.Background(), "k", func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("v"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(v) != "v" {
		t.Fatalf("got %q, want v", v)
	}

	// Warm read must not rebuild.
	v2, err := m.GetOrCreate(context.Background(), "k", func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("other"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(v2) != "v" {
		t.Fatalf("got %q, want the cached v", v2)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 factory call, got %d", calls.Load())
	}
}

// 100 concurrent cold readers of the same key must collapse into one
// factory invocation, all observing the same value.
func TestGetOrCreate_StampedeCollapsesToOneBuild(t *testing.T) {
	m := newTestManager(t, Config{})

	const readers = 100
	calls := atomic.Int64{}
	factory := func(context.Context) ([]byte, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return []byte("User(7)"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, readers)
	errs := make([]error, readers)
	start := time.Now()
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = m.GetOrCreate(context.Background(), "GetUser:7", factory)
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 factory call, got %d", calls.Load())
	}
	for i := 0; i < readers; i++ {
		if errs[i] != nil {
			t.Fatalf("reader %d: unexpected error: %v", i, errs[i])
		}
		if string(results[i]) != "User(7)" {
			t.Fatalf("reader %d: got %q", i, results[i])
		}
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("stampede took %v, expected well under 2s", elapsed)
	}
}

func TestGetOrCreate_FactoryErrorTaggedAndNotCached(t *testing.T) {
	m := newTestManager(t, Config{})

	boom := errors.New("boom")
	calls := atomic.Int64{}
	factory := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return nil, boom
	}

	_, err := m.GetOrCreate(context.Background(), "k", factory)
	if !IsKind(err, KindFactoryFailed) {
		t.Fatalf("expected KindFactoryFailed, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("expected the original factory error to be reachable via errors.Is")
	}

	// No negative caching: the next call retries the factory.
	_, _ = m.GetOrCreate(context.Background(), "k", factory)
	if calls.Load() != 2 {
		t.Fatalf("expected 2 factory calls, got %d", calls.Load())
	}
}

func TestGetOrCreate_RejectsInvalidKeys(t *testing.T) {
	m := newTestManager(t, Config{})
	factory := func(context.Context) ([]byte, error) { return []byte("x"), nil }

	for _, key := range []string{"", "  ", "line\nbreak"} {
		if _, err := m.GetOrCreate(context.Background(), key, factory); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestGetOrCreateBy_VersionIsolation(t *testing.T) {
	m := newTestManager(t, Config{})

	args := []keygen.Arg{{Name: "id", Value: 456}}
	calls := atomic.Int64{}
	factory := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("v"), nil
	}

	if _, err := m.GetOrCreateBy(context.Background(), "Get", args, factory, WithVersion(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same method and args, bumped version: logically a different key.
	if _, err := m.GetOrCreateBy(context.Background(), "Get", args, factory, WithVersion(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected a rebuild after a version bump, got %d factory calls", calls.Load())
	}
}

// S3: surgical tag deletion.
func TestInvalidateByTags_SurgicalDelete(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	set := func(key, val string, tags ...string) {
		t.Helper()
		if _, err := m.GetOrCreate(ctx, key, func(context.Context) ([]byte, error) {
			return []byte(val), nil
		}, WithTags(tags...)); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	set("a", "v1", "u:1", "products")
	set("b", "v2", "u:1")
	set("c", "v3", "products")

	if err := m.InvalidateByTags(ctx, "u:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := m.TryGet(ctx, "a"); ok {
		t.Fatal("expected a to be invalidated via u:1")
	}
	if _, ok := m.TryGet(ctx, "b"); ok {
		t.Fatal("expected b to be invalidated via u:1")
	}
	if v, ok := m.TryGet(ctx, "c"); !ok || string(v) != "v3" {
		t.Fatalf("expected c untouched, got (%q, %v)", v, ok)
	}
}

func TestTryGet_NeverComputes(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	if _, ok := m.TryGet(ctx, "absent"); ok {
		t.Fatal("expected miss on an empty cache")
	}
	if _, err := m.GetOrCreate(ctx, "present", func(context.Context) ([]byte, error) {
		return []byte("v"), nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := m.TryGet(ctx, "present"); !ok || string(v) != "v" {
		t.Fatalf("expected peek hit, got (%q, %v)", v, ok)
	}
}

func TestWithCondition_FalseBypassesCache(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	calls := atomic.Int64{}
	factory := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("x"), nil
	}
	cond := func() bool { return false }

	for i := 0; i < 3; i++ {
		if _, err := m.GetOrCreate(ctx, "k", factory, WithCondition(cond)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("expected every call to run the factory, got %d", calls.Load())
	}
	if _, ok := m.TryGet(ctx, "k"); ok {
		t.Fatal("expected nothing stored while the condition is false")
	}
}

func TestEvents_HitAndMissDelivered(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	var mu sync.Mutex
	var got []Event
	unsub := m.SubscribeEvents(func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	defer unsub()

	factory := func(context.Context) ([]byte, error) { return []byte("v"), nil }
	if _, err := m.GetOrCreate(ctx, "k", factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.GetOrCreate(ctx, "k", factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Kind != EventMiss || got[1].Kind != EventHit {
		t.Fatalf("expected miss then hit, got %v then %v", got[0].Kind, got[1].Kind)
	}
}

func TestOnHitOnMissHooks(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	hits, misses := atomic.Int64{}, atomic.Int64{}
	opts := []Option{
		OnHit(func(Event) { hits.Add(1) }),
		OnMiss(func(Event) { misses.Add(1) }),
	}
	factory := func(context.Context) ([]byte, error) { return []byte("v"), nil }

	_, _ = m.GetOrCreate(ctx, "k", factory, opts...)
	_, _ = m.GetOrCreate(ctx, "k", factory, opts...)

	if misses.Load() != 1 || hits.Load() != 1 {
		t.Fatalf("expected 1 miss and 1 hit, got %d/%d", misses.Load(), hits.Load())
	}
}

func TestGetOrCreateBatch_PositionalResults(t *testing.T) {
	m := newTestManager(t, Config{})
	ctx := context.Background()

	items := []BatchItem{
		{Key: "a", Factory: func(context.Context) ([]byte, error) { return []byte("1"), nil }},
		{Key: "b", Factory: func(context.Context) ([]byte, error) { return []byte("2"), nil }},
		{Key: "c", Factory: func(context.Context) ([]byte, error) { return []byte("3"), nil }},
	}
	results, err := m.GetOrCreateBatch(ctx, items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range []string{"1", "2", "3"} {
		if string(results[i]) != want {
			t.Fatalf("result %d: got %q, want %q", i, results[i], want)
		}
	}
}

func TestConfigurePolicy_RejectsZeroDuration(t *testing.T) {
	m := newTestManager(t, Config{})

	err := m.ConfigurePolicy("Users.Get", policyWithDuration(0))
	if !IsKind(err, KindPolicyInvalid) {
		t.Fatalf("expected KindPolicyInvalid, got %v", err)
	}
	if err := m.ConfigurePolicy("Users.Get", policyWithDuration(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvents_EvictDeliveredUnderPressure(t *testing.T) {
	m := newTestManager(t, Config{
		L1: memstore.Config{MaxEntries: 10},
	})
	ctx := context.Background()

	evicts := atomic.Int64{}
	unsub := m.SubscribeEvents(func(ev Event) {
		if ev.Kind == EventEvict {
			evicts.Add(1)
		}
	})
	defer unsub()

	for i := 0; i < 20; i++ {
		key := "k" + string(rune('a'+i))
		if _, err := m.GetOrCreate(ctx, key, func(context.Context) ([]byte, error) {
			return []byte("v"), nil
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if evicts.Load() == 0 {
		t.Fatal("expected at least one evict event under pressure")
	}
}
