package cache

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/kvregion/observe"
	"github.com/jonwraymond/kvregion/store"
)

// persistConcurrency bounds concurrent index snapshots during Close.
const persistConcurrency = 4

// Registry hands out one Region per name over a shared store client.
//
// Contract:
//   - Concurrency: safe for concurrent use. Concurrent first calls for a name
//     construct and restore exactly one Region; every caller gets it.
//   - Lifecycle: regions live until Close, which persists their key indexes.
type Registry struct {
	client store.Client
	opts   options

	regions sync.Map // name -> *Region
	group   singleflight.Group
}

// NewRegistry creates a registry whose regions share client.
func NewRegistry(client store.Client, opts ...Option) *Registry {
	return &Registry{
		client: client,
		opts:   newOptions(opts),
	}
}

// Region returns the region called name, creating it on first use. A new
// region restores its key index; restore failures are logged and the region
// starts with an empty index.
func (g *Registry) Region(ctx context.Context, name string) (*Region, error) {
	if g == nil {
		return nil, ErrNilRegistry
	}
	if v, ok := g.regions.Load(name); ok {
		return v.(*Region), nil
	}
	if err := ValidateRegionName(name); err != nil {
		return nil, err
	}

	v, err, _ := g.group.Do(name, func() (any, error) {
		if v, ok := g.regions.Load(name); ok {
			return v, nil
		}
		r := newRegion(name, g.client, g.opts)
		if err := r.Restore(ctx); err != nil {
			r.log.Error(ctx, "key index restore failed; starting empty",
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
		g.regions.Store(name, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Region), nil
}

// Names returns the names of the created regions, sorted.
func (g *Registry) Names() []string {
	var names []string
	g.regions.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Flush wipes the whole store and empties every region's index.
func (g *Registry) Flush(ctx context.Context) error {
	if err := g.client.Flush(ctx); err != nil {
		return err
	}
	g.regions.Range(func(_, v any) bool {
		v.(*Region).index.Clear()
		return true
	})
	g.opts.logger.Warn(ctx, "flushed entire store")
	return nil
}

// Close persists every region's key index. All regions are attempted; the
// failures are joined.
func (g *Registry) Close(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(persistConcurrency)

	g.regions.Range(func(_, v any) bool {
		r := v.(*Region)
		eg.Go(func() error {
			if err := r.Persist(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
		return true
	})
	_ = eg.Wait()
	return errors.Join(errs...)
}
