// Package backplane provides the pub/sub channel used to propagate cache
// invalidations across process instances: key, tag, and clear-all
// messages, with sender-origin suppression so a publisher never
// re-invalidates its own, already-consistent, local state.
package backplane
