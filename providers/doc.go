// Package providers defines the storage-provider contract the hybrid
// storage manager uses for its L2 (distributed) and L3 (persistent)
// tiers, and ships one reference implementation per tier: RedisProvider
// (L2) and SQLProvider (L3). Additional providers are expected to be
// supplied by callers; these two exist so the module ships something
// runnable, not an interface-only library.
package providers
