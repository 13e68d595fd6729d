package backplane

import (
	"context"
	"testing"
	"time"
)

// TestLocalBackplane_SenderSuppression covers property 9: a message from
// the local instance is never delivered to its own subscribers, while a
// message from another instance on the same Hub is.
func TestLocalBackplane_SenderSuppression(t *testing.T) {
	hub := NewHub()
	a := NewLocal(hub, "instance-a")
	b := NewLocal(hub, "instance-b")
	defer a.Close()
	defer b.Close()

	var aGotOwn, bGotA bool
	a.Subscribe(func(Message) { aGotOwn = true })
	b.Subscribe(func(Message) { bGotA = true })

	if err := a.PublishKey(context.Background(), "k1"); err != nil {
		t.Fatalf("PublishKey: %v", err)
	}

	if aGotOwn {
		t.Fatal("instance a received its own published message")
	}
	if !bGotA {
		t.Fatal("instance b did not receive instance a's message")
	}
}

func TestLocalBackplane_TagAndClearAll(t *testing.T) {
	hub := NewHub()
	a := NewLocal(hub, "a")
	b := NewLocal(hub, "b")
	defer a.Close()
	defer b.Close()

	received := make(chan Message, 2)
	b.Subscribe(func(m Message) { received <- m })

	if err := a.PublishTag(context.Background(), "products"); err != nil {
		t.Fatalf("PublishTag: %v", err)
	}
	if err := a.PublishClearAll(context.Background()); err != nil {
		t.Fatalf("PublishClearAll: %v", err)
	}

	select {
	case m := <-received:
		if m.Kind != KindTag || m.Payload != "products" {
			t.Fatalf("unexpected first message: %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tag message")
	}
	select {
	case m := <-received:
		if m.Kind != KindClearAll {
			t.Fatalf("unexpected second message: %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for clear_all message")
	}
}
