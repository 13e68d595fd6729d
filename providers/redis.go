package providers

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/cachecore/health"
)

// removeByTagScript atomically (within Redis's single-threaded script
// execution) fetches every key associated with a tag, deletes them, and
// deletes the tag's own membership set. redis.NewScript runs it via
// EVALSHA once the server has it cached, falling back to EVAL.
var removeByTagScript = redis.NewScript(`
local tagKey = KEYS[1]
local members = redis.call('SMEMBERS', tagKey)
for _, k in ipairs(members) do
	redis.call('DEL', k)
	redis.call('DEL', 'keytags:' .. k)
end
redis.call('DEL', tagKey)
return #members
`)

var dropKeyTagsScript = redis.NewScript(`
local keyTagsKey = KEYS[1]
local tags = redis.call('SMEMBERS', keyTagsKey)
for _, t in ipairs(tags) do
	redis.call('SREM', 'tag:' .. t, ARGV[1])
end
redis.call('DEL', keyTagsKey)
return #tags
`)

// RedisProvider is the reference L2 (distributed) storage provider,
// grounded on the pack's Redis-backed tiered caches
// (apps/edge-mcp/internal/cache/tiered_cache.go,
// pkg/common/cache/redis_cache.go). Tag membership is tracked in two
// auxiliary Redis sets per association ("tag:<tag>" -> key set,
// "keytags:<key>" -> tag set) so both RemoveByTag and a single key's
// Remove can clean up the reverse mapping.
type RedisProvider struct {
	client *redis.Client

	hits, misses, errs atomic.Int64
}

// NewRedisProvider creates a RedisProvider over an already-configured
// *redis.Client. Connection details, TLS, and auth are the caller's
// concern; this module does not own client construction.
func NewRedisProvider(client *redis.Client) *RedisProvider {
	return &RedisProvider{client: client}
}

func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		p.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		p.errs.Add(1)
		return nil, false, err
	}
	p.hits.Add(1)
	return v, true, nil
}

func (p *RedisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	if err := p.client.Set(ctx, key, value, ttl).Err(); err != nil {
		p.errs.Add(1)
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, tag := range tags {
		pipe.SAdd(ctx, "tag:"+tag, key)
		pipe.SAdd(ctx, "keytags:"+key, tag)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.errs.Add(1)
		return err
	}
	return nil
}

func (p *RedisProvider) Remove(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, key).Err(); err != nil {
		p.errs.Add(1)
		return err
	}
	return p.dropKeyTags(ctx, key)
}

// dropKeyTags removes key's reverse tag memberships, so a single-key
// delete doesn't leave it as a dangling member of "tag:<tag>" sets.
func (p *RedisProvider) dropKeyTags(ctx context.Context, key string) error {
	err := dropKeyTagsScript.Run(ctx, p.client, []string{"keytags:" + key}, key).Err()
	if err != nil {
		p.errs.Add(1)
	}
	return err
}

func (p *RedisProvider) RemoveByTag(ctx context.Context, tag string) error {
	err := removeByTagScript.Run(ctx, p.client, []string{"tag:" + tag}).Err()
	if err != nil {
		p.errs.Add(1)
	}
	return err
}

func (p *RedisProvider) Exists(ctx context.Context, key string) (bool, error) {
	n, err := p.client.Exists(ctx, key).Result()
	if err != nil {
		p.errs.Add(1)
		return false, err
	}
	return n > 0, nil
}

func (p *RedisProvider) Health(ctx context.Context) health.Result {
	start := time.Now()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return health.Result{
			Status:    health.StatusUnhealthy,
			Message:   "redis ping failed",
			Error:     err,
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		}
	}
	return health.Result{
		Status:    health.StatusHealthy,
		Message:   "redis reachable",
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
}

func (p *RedisProvider) Stats(ctx context.Context) (Stats, error) {
	return Stats{Hits: p.hits.Load(), Misses: p.misses.Load(), Errors: p.errs.Load()}, nil
}

// TryLock implements stampede.DistributedLocker via SETNX-with-TTL,
// backing policy.StampedeDistributedLock.
func (p *RedisProvider) TryLock(ctx context.Context, key string) (func(), bool, error) {
	lockKey := "lock:" + key
	ok, err := p.client.SetNX(ctx, lockKey, "1", 30*time.Second).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func() { p.client.Del(context.Background(), lockKey) }, true, nil
}

var _ Provider = (*RedisProvider)(nil)
