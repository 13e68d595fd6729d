// Package refresh schedules background recomputation of cache entries
// that are still fresh but crossing their policy's refresh-ahead
// threshold, so a foreground reader never blocks waiting for a rebuild.
// Scheduled rebuilds are deduplicated through the same stampede.Coordinator
// single-flight path used for foreground misses.
package refresh
