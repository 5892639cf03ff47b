package cache

import (
	"context"
	"fmt"
	"iter"
)

// TypedRegion is a statically typed view of a Region.
//
// K and V must be registered with the region's type registry. A stored key or
// value of another dynamic type surfaces ErrTypeMismatch on reads.
type TypedRegion[K, V any] struct {
	r *Region
}

// KV is one live entry of a TypedRegion.
type KV[K, V any] struct {
	Key   K
	Value V
}

// Typed wraps r with static key and value types.
func Typed[K, V any](r *Region) *TypedRegion[K, V] {
	return &TypedRegion[K, V]{r: r}
}

// Region returns the untyped region.
func (t *TypedRegion[K, V]) Region() *Region {
	return t.r
}

// Name returns the region name.
func (t *TypedRegion[K, V]) Name() string {
	return t.r.Name()
}

// Get returns the value stored under key.
func (t *TypedRegion[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	v, ok, err := t.r.Get(ctx, key)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	return castValue[V](v)
}

// ContainsKey reports whether key has a live entry.
func (t *TypedRegion[K, V]) ContainsKey(ctx context.Context, key K) (bool, error) {
	return t.r.ContainsKey(ctx, key)
}

// Put stores value without expiration and returns the previous value.
func (t *TypedRegion[K, V]) Put(ctx context.Context, key K, value V) (V, bool, error) {
	return t.PutWithExpiration(ctx, key, value, Eternal)
}

// PutWithExpiration stores value and returns the previous value.
func (t *TypedRegion[K, V]) PutWithExpiration(ctx context.Context, key K, value V, exp Expiration) (V, bool, error) {
	prev, err := t.r.PutWithExpiration(ctx, key, value, exp)
	return castOptional[V](prev, err)
}

// PutIfAbsent stores value unless key has a live entry, which it returns.
func (t *TypedRegion[K, V]) PutIfAbsent(ctx context.Context, key K, value V, exp Expiration) (V, bool, error) {
	existing, err := t.r.PutIfAbsent(ctx, key, value, exp)
	return castOptional[V](existing, err)
}

// Remove deletes key and returns the value it held.
func (t *TypedRegion[K, V]) Remove(ctx context.Context, key K) (V, bool, error) {
	prev, err := t.r.Remove(ctx, key)
	return castOptional[V](prev, err)
}

// RemoveIf removes every entry whose key satisfies pred. Keys of another
// type never match.
func (t *TypedRegion[K, V]) RemoveIf(ctx context.Context, pred func(key K) bool) (bool, error) {
	return t.r.RemoveIf(ctx, func(key any) bool {
		k, ok := key.(K)
		return ok && pred(k)
	})
}

// All returns the live entries as a single-use sequence. A failure is
// yielded last, paired with a zero KV.
func (t *TypedRegion[K, V]) All(ctx context.Context) iter.Seq2[KV[K, V], error] {
	return func(yield func(KV[K, V], error) bool) {
		for e, err := range t.r.Entries(ctx) {
			if err != nil {
				yield(KV[K, V]{}, err)
				return
			}
			k, kok := e.Key.(K)
			v, vok := e.Value.(V)
			if !kok || !vok {
				yield(KV[K, V]{}, fmt.Errorf("%w: entry %v is %T/%T", ErrTypeMismatch, e.Key, e.Key, e.Value))
				return
			}
			if !yield(KV[K, V]{Key: k, Value: v}, nil) {
				return
			}
		}
	}
}

// Size returns the estimated number of entries.
func (t *TypedRegion[K, V]) Size() int {
	return t.r.Size()
}

// Clear deletes every entry of the region.
func (t *TypedRegion[K, V]) Clear(ctx context.Context) error {
	return t.r.Clear(ctx)
}

func castValue[V any](v any) (V, bool, error) {
	typed, ok := v.(V)
	if !ok {
		var zero V
		return zero, false, fmt.Errorf("%w: got %T, want %T", ErrTypeMismatch, v, zero)
	}
	return typed, true, nil
}

func castOptional[V any](v any, err error) (V, bool, error) {
	if err != nil || v == nil {
		var zero V
		return zero, false, err
	}
	return castValue[V](v)
}
