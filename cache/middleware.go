package cache

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/kvregion/observe"
)

// LoadFunc produces the value for a key missing from the region.
type LoadFunc func(ctx context.Context, key any) (any, error)

// ReadThrough fills a region from a loader on misses.
//
// Concurrent misses for the same key share one load. Load errors are
// returned and never cached. A failed write after a successful load is
// logged and the loaded value is still returned.
type ReadThrough struct {
	region     *Region
	expiration Expiration
	loads      singleflight.Group
}

// NewReadThrough stores loaded values in r with exp.
func NewReadThrough(r *Region, exp Expiration) *ReadThrough {
	return &ReadThrough{region: r, expiration: exp}
}

// Get returns the cached value for key, loading and caching it on a miss.
// Store errors on the initial read are returned without calling load.
func (rt *ReadThrough) Get(ctx context.Context, key any, load LoadFunc) (any, error) {
	if err := rt.expiration.Validate(); err != nil {
		return nil, err
	}
	sk, err := rt.region.storeKey(key)
	if err != nil {
		return nil, err
	}

	if v, ok, err := rt.region.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return v, nil
	}

	v, err, _ := rt.loads.Do(sk, func() (any, error) {
		value, err := load(ctx, key)
		if err != nil {
			return nil, err
		}
		if _, err := rt.region.PutWithExpiration(ctx, key, value, rt.expiration); err != nil {
			rt.region.log.Warn(ctx, "read-through write failed",
				observe.Field{Key: "store_key", Value: sk},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
		return value, nil
	})
	return v, err
}
