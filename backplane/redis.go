package backplane

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/cachecore/observe"
)

// wireMessage is the JSON envelope RedisBackplane publishes. Only the
// envelope fields are fixed; serialization is this transport's choice,
// and JSON matches every other wire payload in the module.
type wireMessage struct {
	Kind       Kind   `json:"kind"`
	Payload    string `json:"payload"`
	InstanceID string `json:"instance_id"`
	Timestamp  int64  `json:"timestamp"`
}

// dedupRingSize bounds the recently-seen (instanceID, timestamp, payload)
// triples RedisBackplane tracks to drop redundant at-least-once
// redeliveries. Redis pub/sub can redeliver on client reconnect.
const dedupRingSize = 4096

// RedisBackplane implements Backplane over a single Redis pub/sub
// channel. It is the reference remote transport.
type RedisBackplane struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     observe.Logger

	dedup *dedupRing

	mu   sync.Mutex
	subs map[int]func(Message)
	next int

	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// NewRedis creates a RedisBackplane publishing and subscribing on
// channel, tagging every outgoing message with instanceID (generated
// when empty). Call Start to begin relaying incoming messages to
// subscribers.
func NewRedis(client *redis.Client, channel, instanceID string, logger observe.Logger) *RedisBackplane {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	return &RedisBackplane{
		client:     client,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger,
		dedup:      newDedupRing(dedupRingSize),
		subs:       make(map[int]func(Message)),
	}
}

// Start begins listening for messages on the Redis channel and relaying
// them to local subscribers until ctx is cancelled or Stop is called.
func (b *RedisBackplane) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.pubsub = b.client.Subscribe(runCtx, b.channel)
	go b.relayLoop(runCtx)
}

// InstanceID returns the id stamped on this instance's messages.
func (b *RedisBackplane) InstanceID() string { return b.instanceID }

// Stop ends the subscription loop and releases the underlying Redis
// pub/sub connection.
func (b *RedisBackplane) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
}

func (b *RedisBackplane) relayLoop(ctx context.Context) {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case rmsg, ok := <-ch:
			if !ok {
				return
			}
			b.handleRaw(ctx, rmsg.Payload)
		}
	}
}

func (b *RedisBackplane) handleRaw(ctx context.Context, payload string) {
	var wire wireMessage
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		if b.logger != nil {
			b.logger.Warn(ctx, "backplane: discarding malformed message", observe.Field{Key: "error", Value: err.Error()})
		}
		return
	}
	msg := Message{Kind: wire.Kind, Payload: wire.Payload, InstanceID: wire.InstanceID, Timestamp: wire.Timestamp}

	if msg.InstanceID == b.instanceID {
		return // sender-origin suppression
	}
	if !b.dedup.seenFirstTime(msg.InstanceID, msg.Timestamp, msg.Payload) {
		return
	}

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

func (b *RedisBackplane) Subscribe(onMessage func(Message)) func() {
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

func (b *RedisBackplane) PublishKey(ctx context.Context, key string) error {
	return b.publish(ctx, KindKey, key)
}

func (b *RedisBackplane) PublishTag(ctx context.Context, tag string) error {
	return b.publish(ctx, KindTag, tag)
}

func (b *RedisBackplane) PublishClearAll(ctx context.Context) error {
	return b.publish(ctx, KindClearAll, "")
}

func (b *RedisBackplane) publish(ctx context.Context, kind Kind, payload string) error {
	wire := wireMessage{
		Kind:       kind,
		Payload:    payload,
		InstanceID: b.instanceID,
		Timestamp:  time.Now().UnixMilli(),
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

var _ Backplane = (*RedisBackplane)(nil)

// dedupRing is a fixed-size set of recently-seen (instanceID, timestamp,
// payload) triples, used to drop redundant redeliveries from Redis
// pub/sub's at-least-once delivery.
type dedupRing struct {
	mu   sync.Mutex
	size int
	seen map[string]struct{}
	ring []string
	pos  int
}

func newDedupRing(size int) *dedupRing {
	return &dedupRing{size: size, seen: make(map[string]struct{}, size), ring: make([]string, size)}
}

// seenFirstTime reports whether (instanceID, ts, payload) has not been
// observed before, recording it as seen either way.
func (d *dedupRing) seenFirstTime(instanceID string, ts int64, payload string) bool {
	key := instanceID + "|" + strconv.FormatInt(ts, 10) + "|" + payload

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return false
	}

	if old := d.ring[d.pos]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.pos] = key
	d.pos = (d.pos + 1) % d.size
	d.seen[key] = struct{}{}
	return true
}
