package cache

import (
	"context"
	"strings"

	"github.com/jonwraymond/cachecore/keygen"
)

// ExecutorFunc is the function signature the decorator layer hands the
// middleware: the real computation behind a cached method.
type ExecutorFunc func(ctx context.Context, methodID string, args []keygen.Arg) ([]byte, error)

// SkipRule determines whether to skip caching for a given method call.
// Returns true if caching should be skipped.
type SkipRule func(methodID string, tags []string) bool

// UnsafeTags are tags that indicate a method has side effects and should
// not be cached.
var UnsafeTags = []string{"write", "danger", "unsafe", "mutation", "delete"}

// DefaultSkipRule skips caching for methods with unsafe tags.
// Tag matching is case-insensitive.
func DefaultSkipRule(_ string, tags []string) bool {
	for _, tag := range tags {
		tagLower := strings.ToLower(tag)
		for _, unsafe := range UnsafeTags {
			if tagLower == unsafe {
				return true
			}
		}
	}
	return false
}

// Middleware is the decorator-facing entry point: generated or
// hand-written interception layers call Execute instead of the method
// body, and the Manager handles everything else.
type Middleware struct {
	manager  *Manager
	skipRule SkipRule
}

// NewMiddleware creates a Middleware over manager.
// If skipRule is nil, DefaultSkipRule is used.
func NewMiddleware(manager *Manager, skipRule SkipRule) *Middleware {
	if skipRule == nil {
		skipRule = DefaultSkipRule
	}
	return &Middleware{manager: manager, skipRule: skipRule}
}

// Execute runs the method with caching.
// On cache hit, returns the cached result without calling executor.
// On cache miss, calls executor and caches the result.
// Errors are NOT cached.
func (m *Middleware) Execute(
	ctx context.Context,
	methodID string,
	args []keygen.Arg,
	tags []string,
	executor ExecutorFunc,
) ([]byte, error) {
	// Check if caching should be skipped
	if m.skipRule(methodID, tags) {
		return executor(ctx, methodID, args)
	}

	return m.manager.GetOrCreateBy(ctx, methodID, args,
		func(fctx context.Context) ([]byte, error) {
			return executor(fctx, methodID, args)
		},
		WithTags(tags...))
}
