package cache

import (
	"errors"
	"fmt"
	"strings"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for key validation.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Kind tags an Error with which failure class it belongs to, so callers
// can branch without string matching.
type Kind int

const (
	// KindTierUnavailable: a remote tier was unreachable. The read path
	// absorbs these; they surface only from explicit invalidation calls.
	KindTierUnavailable Kind = iota
	// KindSerializationFailed: a remote tier returned a corrupted or
	// schema-mismatched payload. The offending entry is removed and the
	// operation treated as a miss.
	KindSerializationFailed
	// KindFactoryFailed: the caller-supplied computation returned an
	// error. Unwrap reaches the original verbatim.
	KindFactoryFailed
	// KindPolicyInvalid: a configuration-time policy rejection (e.g.
	// caching active with duration <= 0). Never produced on the hot path.
	KindPolicyInvalid
	// KindCapacityExceeded: a budget (e.g. max tag mappings) refused an
	// association. Reported in stats and logs; calls never fail with it.
	KindCapacityExceeded
	// KindCancelled: the caller's context was cancelled while waiting.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTierUnavailable:
		return "tier_unavailable"
	case KindSerializationFailed:
		return "serialization_failed"
	case KindFactoryFailed:
		return "factory_failed"
	case KindPolicyInvalid:
		return "policy_invalid"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the tagged error the cache surfaces at its boundaries.
type Error struct {
	Kind Kind
	Key  string // the cache key involved, when known
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache: %s (key %q): %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("cache: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) a cache *Error of kind k.
func IsKind(err error, k Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == k
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
