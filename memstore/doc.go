// Package memstore is the L1 in-process key→value store: a sharded map
// with lazy TTL expiry, pluggable eviction, and size accounting. See
// [Store].
//
// # Eviction policies
//
// Each of LRU/LFU/FIFO/TTL/Random is available; LRU/LFU/TTL additionally
// come in an approximate-sampled variant (cheap, bounded inspection) and
// a precise variant (full scan, guaranteed-correct victim selection).
// [LRUApprox] is the default: hits only bump a lastAccess timestamp, no
// linked list is maintained.
//
// # Size accounting
//
// [SizeMode] is a Store-level property, not a per-entry one: every entry
// in a given Store is estimated the same way.
package memstore
