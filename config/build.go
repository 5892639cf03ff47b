package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/kvregion/cache"
	"github.com/jonwraymond/kvregion/envelope"
	"github.com/jonwraymond/kvregion/keycodec"
	"github.com/jonwraymond/kvregion/keyindex"
	"github.com/jonwraymond/kvregion/observe"
	"github.com/jonwraymond/kvregion/resilience"
	"github.com/jonwraymond/kvregion/store"
)

// Runtime holds everything Build wired together.
type Runtime struct {
	Client   store.Client
	Registry *cache.Registry
	Service  *cache.Service
	Observer observe.Observer

	closers []func(context.Context) error
}

// Build wires a store, snapshot backend, telemetry and registry from cfg.
// types registers the value types the application caches; nil uses the
// built-in scalar types only.
func Build(ctx context.Context, cfg Config, types *envelope.TypeRegistry) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if types == nil {
		types = envelope.NewTypeRegistry()
	}

	rt := &Runtime{}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close(ctx)
		}
	}()

	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("config: observer: %w", err)
	}
	rt.Observer = obs
	rt.closers = append(rt.closers, obs.Shutdown)

	inst, err := observe.InstrumentationFromObserver(obs)
	if err != nil {
		return nil, fmt.Errorf("config: instrumentation: %w", err)
	}
	logger := obs.Logger()

	client, err := buildStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	rt.Client = client

	snapshots, err := rt.buildSnapshots(cfg.Snapshots)
	if err != nil {
		return nil, err
	}

	strategy, _ := keycodec.ParseStrategy(cfg.KeyStrategy)
	keys, err := keycodec.New(strategy, types)
	if err != nil {
		return nil, fmt.Errorf("config: key codec: %w", err)
	}

	indexOpts := []keyindex.Option{keyindex.WithLogger(logger)}
	if snapshots != nil {
		indexOpts = append(indexOpts, keyindex.WithSnapshots(snapshots))
	}

	opts := []cache.Option{
		cache.WithKeyCodec(keys),
		cache.WithValueCodec(envelope.NewCodec(types)),
		cache.WithIndexFactory(keyindex.NewFactory(indexOpts...)),
		cache.WithLogger(logger),
		cache.WithInstrumentation(inst),
		cache.WithPolicy(cache.Policy{
			DefaultMaxAge: cfg.Policy.DefaultMaxAge,
			MaxAge:        cfg.Policy.MaxAge,
		}),
	}
	rt.Registry = cache.NewRegistry(client, opts...)
	rt.Service = cache.NewService(client, opts...)

	// Registry persists first so snapshot backends are still open.
	rt.closers = append(rt.closers, rt.Registry.Close)

	ok = true
	return rt, nil
}

// Close persists key indexes, then releases backends in reverse order of
// creation. Every step runs; errors are joined.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func buildStore(cfg StoreConfig, logger observe.Logger) (store.Client, error) {
	var client store.Client
	switch cfg.Kind {
	case StoreMemcache:
		mc, err := store.NewMemcache(store.MemcacheConfig{
			Servers:      cfg.Servers,
			Timeout:      cfg.Timeout,
			MaxIdleConns: cfg.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("config: store: %w", err)
		}
		client = mc
	default:
		client = store.NewMemoryStore()
	}

	if !cfg.Resilience.Enabled {
		return client, nil
	}
	return resilience.NewClient(client, resilience.ClientConfig{
		Retry: resilience.RetryConfig{
			MaxAttempts:  cfg.Resilience.MaxAttempts,
			InitialDelay: cfg.Resilience.InitialDelay,
			Jitter:       true,
		},
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
		},
		Logger: logger,
	}), nil
}

func (rt *Runtime) buildSnapshots(cfg SnapshotsConfig) (keyindex.SnapshotStore, error) {
	switch cfg.Backend {
	case SnapshotsFile:
		return keyindex.NewOSFileSnapshots(cfg.Path), nil
	case SnapshotsSQLite:
		s, err := keyindex.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("config: snapshots: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error { return s.Close() })
		return s, nil
	default:
		return nil, nil
	}
}
