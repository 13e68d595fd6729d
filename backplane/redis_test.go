package backplane

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisPair(t *testing.T) (*RedisBackplane, *RedisBackplane) {
	t.Helper()
	srv := miniredis.RunT(t)

	newInstance := func(id string) *RedisBackplane {
		client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		b := NewRedis(client, "cache-invalidation", id, nil)
		b.Start(context.Background())
		t.Cleanup(b.Stop)
		return b
	}
	return newInstance("instance-a"), newInstance("instance-b")
}

func collect(t *testing.T, b *RedisBackplane) (func() []Message, func()) {
	t.Helper()
	var mu sync.Mutex
	var got []Message
	unsub := b.Subscribe(func(msg Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})
	read := func() []Message {
		mu.Lock()
		defer mu.Unlock()
		out := make([]Message, len(got))
		copy(out, got)
		return out
	}
	return read, unsub
}

func waitForMessages(t *testing.T, read func() []Message, n int) []Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := read(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d messages, got %d", n, len(read()))
	return nil
}

func TestRedisBackplane_DeliversToOtherInstance(t *testing.T) {
	a, b := newRedisPair(t)
	read, unsub := collect(t, b)
	defer unsub()

	if err := a.PublishKey(context.Background(), "k1"); err != nil {
		t.Fatalf("PublishKey: %v", err)
	}

	msgs := waitForMessages(t, read, 1)
	if msgs[0].Kind != KindKey || msgs[0].Payload != "k1" {
		t.Fatalf("got %+v, want key invalidation for k1", msgs[0])
	}
	if msgs[0].InstanceID != "instance-a" {
		t.Fatalf("got sender %q, want instance-a", msgs[0].InstanceID)
	}
}

func TestRedisBackplane_SenderSuppression(t *testing.T) {
	a, b := newRedisPair(t)
	readA, unsubA := collect(t, a)
	defer unsubA()
	readB, unsubB := collect(t, b)
	defer unsubB()

	if err := a.PublishTag(context.Background(), "users"); err != nil {
		t.Fatalf("PublishTag: %v", err)
	}

	waitForMessages(t, readB, 1)
	// A published it; A must never see its own message.
	if msgs := readA(); len(msgs) != 0 {
		t.Fatalf("expected the sender to suppress its own message, got %v", msgs)
	}
}

func TestRedisBackplane_ClearAllHasEmptyPayload(t *testing.T) {
	a, b := newRedisPair(t)
	read, unsub := collect(t, b)
	defer unsub()

	if err := a.PublishClearAll(context.Background()); err != nil {
		t.Fatalf("PublishClearAll: %v", err)
	}

	msgs := waitForMessages(t, read, 1)
	if msgs[0].Kind != KindClearAll || msgs[0].Payload != "" {
		t.Fatalf("got %+v, want clear_all with empty payload", msgs[0])
	}
}

func TestRedisBackplane_MalformedMessageDiscarded(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := NewRedis(client, "chan", "local", nil)
	b.Start(context.Background())
	t.Cleanup(b.Stop)
	read, unsub := collect(t, b)
	defer unsub()

	pub := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = pub.Close() })
	if err := pub.Publish(context.Background(), "chan", "not json").Err(); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Then a valid one proves the relay loop survived the bad payload.
	valid := NewRedis(pub, "chan", "peer", nil)
	if err := valid.PublishKey(context.Background(), "k"); err != nil {
		t.Fatalf("PublishKey: %v", err)
	}

	msgs := waitForMessages(t, read, 1)
	if len(msgs) != 1 || msgs[0].Payload != "k" {
		t.Fatalf("expected only the valid message, got %v", msgs)
	}
}

func TestDedupRing_DropsRepeatedTriples(t *testing.T) {
	d := newDedupRing(4)
	if !d.seenFirstTime("a", 1, "k") {
		t.Fatal("first sighting must pass")
	}
	if d.seenFirstTime("a", 1, "k") {
		t.Fatal("identical triple must be dropped")
	}
	if !d.seenFirstTime("a", 2, "k") {
		t.Fatal("different timestamp is a different message")
	}

	// Ring wraps: oldest entries fall out and become deliverable again.
	d.seenFirstTime("b", 1, "x")
	d.seenFirstTime("b", 2, "x")
	d.seenFirstTime("b", 3, "x")
	if !d.seenFirstTime("a", 1, "k") {
		t.Fatal("expected the wrapped-out triple to pass again")
	}
}
