package memstore

// SizeMode controls how an entry's byte-size estimate is computed. It is
// a property of the Store, not of individual entries, so a single sweep
// policy governs every entry uniformly.
type SizeMode int

const (
	// SizeFast assigns a constant estimate regardless of value length —
	// cheapest, least accurate.
	SizeFast SizeMode = iota
	// SizeEstimated charges a fixed per-entry overhead plus the value's
	// actual length plus the length of each tag; cheap and reasonably
	// accurate for []byte payloads, which is what Store stores.
	SizeEstimated
	// SizeAccurate recomputes the estimate during the periodic cleanup
	// sweep rather than trusting the insert-time estimate indefinitely.
	SizeAccurate
)

// entryOverheadBytes approximates the fixed cost of an entry's bookkeeping
// fields (timestamps, counters, tag slice header) for SizeEstimated and
// SizeAccurate; SizeFast uses sizeFastConstant instead.
const entryOverheadBytes = 64

const sizeFastConstant = 128

func estimateSize(mode SizeMode, value []byte, tags []string) int64 {
	switch mode {
	case SizeFast:
		return sizeFastConstant
	default: // SizeEstimated and SizeAccurate use the same formula at insert time
		total := entryOverheadBytes + len(value)
		for _, t := range tags {
			total += len(t)
		}
		return int64(total)
	}
}
