package providers

import (
	"context"

	"github.com/jonwraymond/cachecore/health"
)

// TierChecker adapts a Provider's Health method into a health.Checker,
// so remote tiers can be registered with a health.Aggregator alongside
// process-level checkers.
type TierChecker struct {
	name     string
	provider Provider
}

// NewTierChecker creates a checker reporting provider's health under
// name (conventionally "l2" or "l3").
func NewTierChecker(name string, provider Provider) *TierChecker {
	return &TierChecker{name: name, provider: provider}
}

// Name returns the checker's name.
func (c *TierChecker) Name() string { return c.name }

// Check reports the tier's current health.
func (c *TierChecker) Check(ctx context.Context) health.Result {
	return c.provider.Health(ctx)
}

var _ health.Checker = (*TierChecker)(nil)
