package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonwraymond/cachecore/keygen"
)

func newBenchManager(b *testing.B) *Manager {
	b.Helper()
	m, err := New(context.Background(), Config{DefaultTTL: time.Hour})
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	b.Cleanup(func() { _ = m.Close() })
	return m
}

// BenchmarkGetOrCreate_Hit measures the warm read path through the full
// facade (policy resolution defaults, L1 hit, event emission with no
// subscribers).
func BenchmarkGetOrCreate_Hit(b *testing.B) {
	m := newBenchManager(b)
	ctx := context.Background()
	factory := func(context.Context) ([]byte, error) { return []byte("v"), nil }
	if _, err := m.GetOrCreate(ctx, "bench-key", factory); err != nil {
		b.Fatalf("warmup: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.GetOrCreate(ctx, "bench-key", factory); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkGetOrCreate_Hit_Parallel exercises concurrent warm reads.
func BenchmarkGetOrCreate_Hit_Parallel(b *testing.B) {
	m := newBenchManager(b)
	ctx := context.Background()
	factory := func(context.Context) ([]byte, error) { return []byte("v"), nil }
	if _, err := m.GetOrCreate(ctx, "bench-key", factory); err != nil {
		b.Fatalf("warmup: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := m.GetOrCreate(ctx, "bench-key", factory); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkGetOrCreateBy_Hit includes key generation in the warm path.
func BenchmarkGetOrCreateBy_Hit(b *testing.B) {
	m := newBenchManager(b)
	ctx := context.Background()
	args := []keygen.Arg{{Name: "id", Value: 456}}
	factory := func(context.Context) ([]byte, error) { return []byte("v"), nil }
	if _, err := m.GetOrCreateBy(ctx, "Users.Get", args, factory); err != nil {
		b.Fatalf("warmup: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.GetOrCreateBy(ctx, "Users.Get", args, factory); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkTryGet measures the peek path.
func BenchmarkTryGet(b *testing.B) {
	m := newBenchManager(b)
	ctx := context.Background()
	if _, err := m.GetOrCreate(ctx, "bench-key", func(context.Context) ([]byte, error) {
		return []byte("v"), nil
	}); err != nil {
		b.Fatalf("warmup: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := m.TryGet(ctx, "bench-key"); !ok {
			b.Fatal("unexpected miss")
		}
	}
}
