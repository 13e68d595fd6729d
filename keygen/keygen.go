// Package keygen generates deterministic, collision-resistant cache keys
// from a method identifier, its arguments, and the resolved policy
// descriptor's version.
//
// Method signatures are never inspected at generation time: callers (or
// the decorator layer this module does not own) supply a pre-built []Arg,
// the equivalent of a compile-time-generated encoding. Common concrete
// argument types encode through a plain type switch; only uncommon named
// types (enums and the like) fall back to a kind check.
package keygen

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

// MaxReadableLength bounds the Readable generator's output before it
// truncates and hashes the tail. Matches the teacher's MaxKeyLength.
const MaxReadableLength = 512

// nilSentinel is the canonical encoding of a nil/absent argument value.
const nilSentinel = "\x00nil\x00"

// Arg is one named argument supplied to a cached method call.
//
// Name appears verbatim in Readable keys; FastHash and Binary include it
// in the hashed material to distinguish "same values, different
// parameter names" call sites.
type Arg struct {
	Name  string
	Value any
}

// KeyMaterial is the subset of a policy descriptor that participates in
// key generation. Kept separate from the policy package's Descriptor to
// avoid an import cycle (policy does not need to know about keygen, but
// keygen needs the version integer policy resolves).
type KeyMaterial struct {
	// Version is incorporated into every generated key so bumping it
	// invalidates all previously generated keys for the method.
	Version int
}

// Generator produces deterministic cache keys.
//
// Contract:
//   - Determinism: equal (methodID, args, material) must always produce
//     the same string, across runs, processes, and goroutines.
//   - Collision resistance: distinct inputs produce distinct keys with
//     negligible collision probability for the generator's output width.
//   - Stability: the output must never include file paths or addresses.
//   - Concurrency: implementations must be safe for concurrent use.
type Generator interface {
	Generate(methodID string, args []Arg, material KeyMaterial) (string, error)
}

// canonicalValue renders v into a byte-stable, type-stable representation.
// This is the single place edge-case encoding policy lives for all three
// generators: nil uses a reserved sentinel, enums (any integer-kinded
// value) use their underlying integer, floats use their exact bit
// pattern, []any slices are walked in the order the caller supplied them
// (not re-sorted, because doing so would silently change semantically
// distinct calls like Range(3, 1) into Range(1, 3)), and map[string]any
// entries are walked in sorted key order, since a map has no caller order.
func canonicalValue(v any) string {
	if v == nil {
		return nilSentinel
	}
	switch val := v.(type) {
	case string:
		return "s:" + val
	case bool:
		if val {
			return "b:1"
		}
		return "b:0"
	case int:
		return fmt.Sprintf("i:%d", val)
	case int32:
		return fmt.Sprintf("i:%d", val)
	case int64:
		return fmt.Sprintf("i:%d", val)
	case uint:
		return fmt.Sprintf("u:%d", val)
	case uint64:
		return fmt.Sprintf("u:%d", val)
	case float32:
		return fmt.Sprintf("f:%x", math.Float32bits(val))
	case float64:
		return fmt.Sprintf("f:%x", math.Float64bits(val))
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = canonicalValue(e)
		}
		return "[" + joinSemicolon(parts) + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + canonicalValue(val[k])
		}
		return "{" + joinSemicolon(parts) + "}"
	default:
		return canonicalFallback(val)
	}
}

// canonicalFallback handles values outside the common concrete types.
// Named integer types (enums) encode by their underlying integer so two
// enum types with equal values but different String() renderings, or a
// renamed constant, never change the key. Stringer is consulted only
// for non-numeric kinds.
func canonicalFallback(v any) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("i:%d", rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("u:%d", rv.Uint())
	case reflect.Float32:
		return fmt.Sprintf("f:%x", math.Float32bits(float32(rv.Float())))
	case reflect.Float64:
		return fmt.Sprintf("f:%x", math.Float64bits(rv.Float()))
	case reflect.Bool:
		if rv.Bool() {
			return "b:1"
		}
		return "b:0"
	case reflect.String:
		return "s:" + rv.String()
	}
	if s, ok := v.(fmt.Stringer); ok {
		return "s:" + s.String()
	}
	return fmt.Sprintf("v:%v", v)
}

func joinSemicolon(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ";"
		}
		out += p
	}
	return out
}

// canonicalArgs renders the full argument list, in caller-declared order,
// into one canonical byte string. Argument order is part of the call
// identity: Key("a", 1, "b", 2) must differ from Key("b", 2, "a", 1)
// unless the caller builds its []Arg identically for both.
func canonicalArgs(args []Arg) []byte {
	buf := make([]byte, 0, 64*len(args))
	for _, a := range args {
		buf = append(buf, a.Name...)
		buf = append(buf, '=')
		buf = append(buf, canonicalValue(a.Value)...)
		buf = append(buf, ';')
	}
	return buf
}
