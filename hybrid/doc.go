// Package hybrid coordinates the three storage tiers: L1
// (memstore, always present), L2 (a distributed providers.Provider,
// optional), and L3 (a persistent providers.Provider, optional):
// promotion on read, asynchronous write-behind with bounded queues,
// per-tier circuit breaking and retry, and backplane-driven invalidation
// with sender-origin suppression.
package hybrid
