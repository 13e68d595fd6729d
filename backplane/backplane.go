package backplane

import "context"

// Kind identifies the category of an invalidation Message.
type Kind int

const (
	// KindKey invalidates one specific cache key. Payload is the key.
	KindKey Kind = iota
	// KindTag invalidates every key carrying one tag. Payload is the tag.
	KindTag
	// KindClearAll invalidates every key in L1. Payload is empty.
	KindClearAll
)

func (k Kind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindTag:
		return "tag"
	case KindClearAll:
		return "clear_all"
	default:
		return "unknown"
	}
}

// Message is the fixed backplane envelope: kind, payload (key or tag
// string, empty for clear_all), the publishing instance's id, and a
// wall-clock timestamp in milliseconds.
type Message struct {
	Kind       Kind
	Payload    string
	InstanceID string
	Timestamp  int64 // unix millis
}

// Backplane publishes and subscribes to cross-process invalidation
// messages. Delivery is best-effort, at-least-once to other subscribers,
// with no ordering guarantee across different keys or tags.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Sender suppression: a Backplane never delivers a message back to
//     the instance that published it — the hybrid manager relies on this
//     so local invalidations are never double-applied.
type Backplane interface {
	// Subscribe registers onMessage to be called for every message from
	// any OTHER instance. The returned func unsubscribes.
	Subscribe(onMessage func(Message)) (unsubscribe func())

	// InstanceID returns the id stamped on this instance's outgoing
	// messages. Consumers that suppress their own messages must use
	// this id, not a separately-configured one.
	InstanceID() string

	PublishKey(ctx context.Context, key string) error
	PublishTag(ctx context.Context, tag string) error
	PublishClearAll(ctx context.Context) error
}
