// Package keygen turns a method identifier and its arguments into a
// deterministic cache key, without using reflection on the call site.
//
// Three interchangeable [Generator] implementations are provided:
//
//   - [FastHash]: xxHash-based, fixed-width, the default for hot paths.
//   - [Readable]: human-inspectable, truncated and hashed past
//     [MaxReadableLength].
//   - [Binary]: gob-encodes the canonical argument list before hashing,
//     for schemas the caller would rather not serialize to strings.
//
// All three incorporate [KeyMaterial].Version, so bumping a method's
// policy version invalidates every key previously generated for it
// without an explicit cache flush.
package keygen
