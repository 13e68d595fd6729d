// Package policy resolves a runtime policy descriptor for a method id by
// merging four layers of configuration — compile-time attributes,
// startup-fluent configuration, configuration files, and runtime
// overrides — with fixed precedence, and publishes the merged result
// through a wait-free atomic snapshot so hot-path reads never block on a
// concurrent reload.
package policy

import (
	"time"

	"github.com/jonwraymond/cachecore/keygen"
)

// StampedeMode selects how the stampede coordinator (package stampede)
// treats concurrent misses for a method's keys. The zero value is
// StampedeSingleFlight.
type StampedeMode int

const (
	// StampedeSingleFlight collapses concurrent misses for the same key into
	// one factory call. It is the zero value, so a Descriptor that never
	// sets StampedeMode gets single-flight collapsing.
	StampedeSingleFlight StampedeMode = iota
	// StampedeNone performs no deduplication: every miss invokes the factory.
	StampedeNone
	// StampedeProbabilistic adds xfetch-style early probabilistic refresh on
	// top of single-flight collapsing.
	StampedeProbabilistic
	// StampedeDistributedLock hands off to an L2-backed distributed lock
	// instead of (or in addition to) the in-process singleflight.Group.
	StampedeDistributedLock
)

func (m StampedeMode) String() string {
	switch m {
	case StampedeNone:
		return "none"
	case StampedeSingleFlight:
		return "single-flight"
	case StampedeProbabilistic:
		return "probabilistic"
	case StampedeDistributedLock:
		return "distributed-lock"
	default:
		return "unknown"
	}
}

// Provenance identifies the highest-precedence layer that contributed at
// least one field to a resolved Descriptor.
type Provenance int

const (
	ProvenanceAttribute Provenance = iota
	ProvenanceFluent
	ProvenanceFile
	ProvenanceOverride
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceAttribute:
		return "attribute"
	case ProvenanceFluent:
		return "fluent"
	case ProvenanceFile:
		return "file"
	case ProvenanceOverride:
		return "override"
	default:
		return "unknown"
	}
}

// RefreshThreshold expresses a refresh-ahead trigger point as either a
// fraction of the entry's lifetime, or an absolute duration before
// expiry. At most one of the two should be set; Fraction takes
// precedence when both are non-zero.
type RefreshThreshold struct {
	Fraction float64       // e.g. 0.8 = refresh at 80% of lifetime
	Absolute time.Duration // e.g. refresh 30s before expiry
}

// IsZero reports whether no refresh-ahead threshold is configured.
func (r RefreshThreshold) IsZero() bool {
	return r.Fraction == 0 && r.Absolute == 0
}

// TriggerAt resolves this threshold into an absolute "refresh when
// remaining lifetime drops below this duration" value, given the entry's
// total lifetime. Fraction takes precedence over Absolute when both are
// set, per the type's doc comment.
func (r RefreshThreshold) TriggerAt(lifetime time.Duration) time.Duration {
	if r.Fraction > 0 {
		return time.Duration(float64(lifetime) * (1 - r.Fraction))
	}
	return r.Absolute
}

// Descriptor is the fully merged runtime policy for one method id.
//
// Version is incorporated into every key keygen generates for this
// method (see package keygen): bumping it invalidates all previously
// generated keys without an explicit flush.
type Descriptor struct {
	MethodID         string
	Duration         time.Duration
	SlidingExtension time.Duration
	RefreshThreshold RefreshThreshold
	Tags             []string
	Version          int
	StampedeMode     StampedeMode
	KeyGenerator     string // "fast" | "readable" | "binary", empty = registry default
	Metadata         map[string]string

	// CancelSafeFactory marks the method's factory safe to abort when
	// the last single-flight waiter cancels. When false an in-flight
	// build always runs to completion.
	CancelSafeFactory bool

	// Provenance records the highest-precedence layer that contributed to
	// this descriptor, for diagnostics and GetPolicy's second return value.
	Provenance Provenance
}

// Active reports whether caching should occur at all under this
// descriptor (duration > 0 when caching is active).
func (d Descriptor) Active() bool {
	return d.Duration > 0
}

// KeyMaterial extracts the subset of this descriptor that keygen.Generator
// implementations need.
func (d Descriptor) KeyMaterial() keygen.KeyMaterial {
	return keygen.KeyMaterial{Version: d.Version}
}
