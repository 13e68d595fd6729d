// Package tagindex implements the key↔tag mapping used for surgical
// invalidation. See [Index].
//
// # Budget
//
// New(maxMappings) bounds the total number of (key,tag) pairs the index
// will track. Once the budget is reached, further Associate calls for
// new pairs are refused and counted in Stats rather than silently
// evicting an older mapping — correctness is preserved (no incorrect
// hits), only the ability to invalidate through the dropped tag is
// lost.
package tagindex
