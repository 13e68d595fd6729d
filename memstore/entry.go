package memstore

import "sync/atomic"

// entry is one L1 cache slot. Present until its absolute expiration
// passes (lazy expiry) or it is explicitly removed/evicted/invalidated;
// there is no Evicted state on the struct itself — a removed entry is
// simply deleted from its shard's map and a fresh Set creates a new one.
type entry struct {
	value []byte
	tags  []string

	createdAt  int64 // unix nanos
	expiresAt  int64 // unix nanos; lazy-compared against now on every Get
	lastAccess atomic.Int64 // unix nanos, bumped on every hit without a linked list
	accessCount atomic.Int64

	size int64 // current size estimate in bytes, per Store.sizeMode
}

func newEntry(value []byte, tags []string, now, expiresAt int64, size int64) *entry {
	e := &entry{
		value:     value,
		tags:      tags,
		createdAt: now,
		expiresAt: expiresAt,
		size:      size,
	}
	e.lastAccess.Store(now)
	e.accessCount.Store(1)
	return e
}

func (e *entry) expired(now int64) bool {
	return e.expiresAt != 0 && now > e.expiresAt
}

func (e *entry) touch(now int64) {
	e.lastAccess.Store(now)
	e.accessCount.Add(1)
}
