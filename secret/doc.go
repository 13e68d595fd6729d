// Package secret provides a small, dependency-light secret resolution layer.
//
// It supports:
//   - Strict environment expansion (see ExpandEnvStrict)
//   - Pluggable secret providers (see Provider + Registry)
//   - Resolving secret references in configuration values (see Resolver)
//
// References use the prefix "secretref:":
//   - Full value:  secretref:bws:project/dotenv/key/OPENAI_API_KEY
//   - Inline use:  Bearer secretref:bws:project/dotenv/key/OPENAI_API_KEY
//
// The providers package's SQL (L3) provider resolves its DSN through this
// layer (providers.Open) so credentials never appear literally in
// configuration files; the Redis provider takes a ready client.
package secret
