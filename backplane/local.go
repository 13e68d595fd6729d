package backplane

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Hub is a shared in-process message bus: multiple LocalBackplane values
// attached to the same Hub behave like distinct instances talking over a
// real transport, which is what lets single-process tests exercise
// sender-origin suppression without standing up Redis. A Hub with only
// one attached LocalBackplane behaves exactly like "no remote backplane
// configured" — nothing is ever delivered back to its own publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[int]*LocalBackplane
	next int
}

// NewHub creates an empty message bus.
func NewHub() *Hub { return &Hub{subs: make(map[int]*LocalBackplane)} }

func (h *Hub) register(b *LocalBackplane) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = b
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	targets := make([]*LocalBackplane, 0, len(h.subs))
	for _, b := range h.subs {
		targets = append(targets, b)
	}
	h.mu.Unlock()

	for _, b := range targets {
		if b.instanceID == msg.InstanceID {
			continue // sender-origin suppression
		}
		b.deliver(msg)
	}
}

// LocalBackplane is a Backplane backed by a Hub. It is the default when
// no remote backplane is configured: a Hub with a single LocalBackplane
// attached never delivers a message back to its own publisher, matching
// "hybrid.Manager treats a nil Backplane as no publish" for the common
// single-process case while still satisfying the Backplane interface for
// callers that want one uniformly.
type LocalBackplane struct {
	hub        *Hub
	instanceID string
	unregister func()

	mu   sync.Mutex
	subs map[int]func(Message)
	next int
}

// NewLocal attaches a new LocalBackplane to hub under instanceID. An
// empty instanceID gets a generated one; two instances sharing an id
// would suppress each other's messages.
func NewLocal(hub *Hub, instanceID string) *LocalBackplane {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	b := &LocalBackplane{hub: hub, instanceID: instanceID, subs: make(map[int]func(Message))}
	b.unregister = hub.register(b)
	return b
}

// Close detaches this instance from its Hub.
func (b *LocalBackplane) Close() { b.unregister() }

// InstanceID returns the id stamped on this instance's messages.
func (b *LocalBackplane) InstanceID() string { return b.instanceID }

func (b *LocalBackplane) Subscribe(onMessage func(Message)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = onMessage
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *LocalBackplane) deliver(msg Message) {
	b.mu.Lock()
	subs := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}

func (b *LocalBackplane) PublishKey(ctx context.Context, key string) error {
	return b.publish(Message{Kind: KindKey, Payload: key})
}

func (b *LocalBackplane) PublishTag(ctx context.Context, tag string) error {
	return b.publish(Message{Kind: KindTag, Payload: tag})
}

func (b *LocalBackplane) PublishClearAll(ctx context.Context) error {
	return b.publish(Message{Kind: KindClearAll})
}

func (b *LocalBackplane) publish(msg Message) error {
	msg.InstanceID = b.instanceID
	msg.Timestamp = time.Now().UnixMilli()
	b.hub.broadcast(msg)
	return nil
}

var _ Backplane = (*LocalBackplane)(nil)
