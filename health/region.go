package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/kvregion/cache"
)

// RegionCheckerConfig configures RegionChecker.
type RegionCheckerConfig struct {
	// MaxIndexedKeys reports Degraded when any region indexes more keys.
	// Stale keys accumulate when entries expire at the store unread.
	// Zero disables the limit.
	MaxIndexedKeys int
}

// RegionChecker reports the regions of a registry and their index sizes.
type RegionChecker struct {
	registry *cache.Registry
	config   RegionCheckerConfig
}

// NewRegionChecker creates a checker for registry.
func NewRegionChecker(registry *cache.Registry, config RegionCheckerConfig) *RegionChecker {
	return &RegionChecker{registry: registry, config: config}
}

// Name returns the name of this checker.
func (c *RegionChecker) Name() string {
	return "regions"
}

// Check reads the index size of every created region.
func (c *RegionChecker) Check(ctx context.Context) Result {
	if c.registry == nil {
		return Unhealthy("no registry", cache.ErrNilRegistry)
	}

	sizes := make(map[string]any)
	var over []string
	for _, name := range c.registry.Names() {
		r, err := c.registry.Region(ctx, name)
		if err != nil {
			return Unhealthy("region lookup failed", err)
		}
		n := r.Size()
		sizes[name] = n
		if c.config.MaxIndexedKeys > 0 && n > c.config.MaxIndexedKeys {
			over = append(over, name)
		}
	}

	details := map[string]any{"regions": len(sizes), "indexed_keys": sizes}
	if len(over) > 0 {
		return Degraded(fmt.Sprintf("regions over %d indexed keys: %v", c.config.MaxIndexedKeys, over)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d regions", len(sizes))).WithDetails(details)
}

var _ Checker = (*RegionChecker)(nil)
