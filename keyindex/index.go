package keyindex

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/jonwraymond/kvregion/observe"
)

// Sentinel errors for index operations.
var (
	ErrNoSnapshot      = errors.New("keyindex: no snapshot")
	ErrSnapshotVersion = errors.New("keyindex: unsupported snapshot version")
	ErrInvalidName     = errors.New("keyindex: index name is invalid")
)

// SnapshotVersion is the snapshot format written by Persist.
const SnapshotVersion = 1

// Snapshot is the persisted form of one index.
type Snapshot struct {
	Version int      `json:"version"`
	Name    string   `json:"name"`
	Keys    []string `json:"keys"`
}

// SnapshotStore persists index snapshots.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Load returns ErrNoSnapshot when nothing was saved for name.
type SnapshotStore interface {
	Load(ctx context.Context, name string) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Index is a concurrency-safe set of store keys.
type Index struct {
	name      string
	snapshots SnapshotStore
	logger    observe.Logger

	mu   sync.RWMutex
	keys map[string]struct{}
}

// Option configures an Index.
type Option func(*Index)

// WithSnapshots enables Persist and Restore through s.
func WithSnapshots(s SnapshotStore) Option {
	return func(i *Index) {
		i.snapshots = s
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l observe.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// New creates an empty index for the named region.
func New(name string, opts ...Option) *Index {
	i := &Index{
		name:   name,
		keys:   make(map[string]struct{}),
		logger: observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Name returns the index name.
func (i *Index) Name() string {
	return i.name
}

// Add inserts key.
func (i *Index) Add(key string) {
	i.mu.Lock()
	i.keys[key] = struct{}{}
	i.mu.Unlock()
}

// Remove deletes key. Removing an absent key is a no-op.
func (i *Index) Remove(key string) {
	i.mu.Lock()
	delete(i.keys, key)
	i.mu.Unlock()
}

// Contains reports whether key is indexed.
func (i *Index) Contains(key string) bool {
	i.mu.RLock()
	_, ok := i.keys[key]
	i.mu.RUnlock()
	return ok
}

// Keys returns a sorted snapshot of the indexed keys.
func (i *Index) Keys() []string {
	i.mu.RLock()
	keys := make([]string, 0, len(i.keys))
	for k := range i.keys {
		keys = append(keys, k)
	}
	i.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// All iterates over a snapshot taken when iteration starts; concurrent
// Add and Remove calls are not observed.
func (i *Index) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, k := range i.Keys() {
			if !yield(k) {
				return
			}
		}
	}
}

// Len returns the number of indexed keys.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.keys)
}

// Clear removes every key.
func (i *Index) Clear() {
	i.mu.Lock()
	i.keys = make(map[string]struct{})
	i.mu.Unlock()
}

// Restore merges the last persisted snapshot into the index. A missing
// snapshot or a missing SnapshotStore is not an error.
func (i *Index) Restore(ctx context.Context) error {
	if i.snapshots == nil {
		return nil
	}
	snap, err := i.snapshots.Load(ctx, i.name)
	if errors.Is(err, ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keyindex: restore %q: %w", i.name, err)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}

	i.mu.Lock()
	for _, k := range snap.Keys {
		i.keys[k] = struct{}{}
	}
	n := len(i.keys)
	i.mu.Unlock()

	i.logger.Info(ctx, "restored key index",
		observe.Field{Key: "cache.region", Value: i.name},
		observe.Field{Key: "keys", Value: n},
	)
	return nil
}

// Persist writes the current key set. Failures are logged and returned.
func (i *Index) Persist(ctx context.Context) error {
	if i.snapshots == nil {
		return nil
	}
	snap := Snapshot{Version: SnapshotVersion, Name: i.name, Keys: i.Keys()}
	if err := i.snapshots.Save(ctx, snap); err != nil {
		i.logger.Error(ctx, "failed to persist key index",
			observe.Field{Key: "cache.region", Value: i.name},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return fmt.Errorf("keyindex: persist %q: %w", i.name, err)
	}
	i.logger.Info(ctx, "persisted key index",
		observe.Field{Key: "cache.region", Value: i.name},
		observe.Field{Key: "keys", Value: len(snap.Keys)},
	)
	return nil
}

// Factory creates the index for a region name.
type Factory func(name string) *Index

// NewFactory returns a Factory applying opts to every index.
func NewFactory(opts ...Option) Factory {
	return func(name string) *Index {
		return New(name, opts...)
	}
}
