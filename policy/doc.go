// Package policy resolves per-method caching policy from four
// precedence-ordered sources and publishes changes without blocking
// readers. See [Registry] for the entry point.
//
// # Layers, ascending precedence
//
//	attribute < fluent < file < override
//
// A field set at a higher layer replaces the lower; Tags are the one
// exception — they union across every layer that sets any, so an
// override can never accidentally drop a default/group tag.
//
// # Hot reload
//
// [FileSource] wraps a viper.Viper with WatchConfig armed: editing the
// backing YAML file re-applies the file layer for every method it
// describes and republishes affected Descriptors through the owning
// Registry.
package policy
