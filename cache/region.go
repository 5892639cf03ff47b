package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/kvregion/envelope"
	"github.com/jonwraymond/kvregion/keycodec"
	"github.com/jonwraymond/kvregion/keyindex"
	"github.com/jonwraymond/kvregion/observe"
	"github.com/jonwraymond/kvregion/store"
)

// Region is a named, map-like view over a shared store.
//
// Keys and values may be of any type registered with the value codec's type
// registry. A Region is usually obtained from a Registry; NewRegion builds a
// standalone one.
//
// Contract:
//   - Concurrency: safe for concurrent use. Operations that make more than one
//     store call (Put returning the previous value, Get refreshing an idle
//     entry, PutIfAbsent) are not atomic; concurrent writers race and the last
//     write wins.
//   - Errors: store failures wrap store.ErrStore and are always returned.
//     Undecodable entries are logged, deleted and reported as misses.
//   - Expiry: idle timeouts are enforced lazily on reads; nothing runs in the
//     background.
type Region struct {
	name   string
	client store.Client
	keys   keycodec.Codec
	values *envelope.Codec
	index  *keyindex.Index
	now    func() time.Time
	log    observe.Logger
	inst   *observe.Instrumentation
}

// NewRegion creates a standalone region over client. Its key index starts
// empty; call Restore to load a persisted snapshot.
func NewRegion(name string, client store.Client, opts ...Option) (*Region, error) {
	if err := ValidateRegionName(name); err != nil {
		return nil, err
	}
	return newRegion(name, client, newOptions(opts)), nil
}

func newRegion(name string, client store.Client, o options) *Region {
	return &Region{
		name:   name,
		client: client,
		keys:   o.keys,
		values: o.values,
		index:  o.indexes(name),
		now:    o.now,
		log:    o.logger.WithRegion(name),
		inst:   o.inst,
	}
}

// Name returns the region name.
func (r *Region) Name() string {
	return r.name
}

// Size returns the number of indexed keys. It is an estimate: entries that
// expired at the store are counted until a read notices them, and entries
// written by other processes are not counted.
func (r *Region) Size() int {
	return r.index.Len()
}

// Restore merges the persisted key index, if any.
func (r *Region) Restore(ctx context.Context) error {
	return r.index.Restore(ctx)
}

// Persist writes the key index to its snapshot store, if any.
func (r *Region) Persist(ctx context.Context) error {
	return r.index.Persist(ctx)
}

// Get returns the value stored under key. On a hit with an idle timeout the
// entry's access time is refreshed in the store.
func (r *Region) Get(ctx context.Context, key any) (value any, found bool, err error) {
	err = r.observe(ctx, "get", func(ctx context.Context) error {
		sk, err := r.storeKey(key)
		if err != nil {
			return err
		}
		e, ok, err := r.lookup(ctx, sk, true)
		if err != nil {
			return err
		}
		r.inst.Metrics().RecordLookup(ctx, r.name, ok)
		if ok {
			value, found = e.Value, true
		}
		return nil
	})
	return value, found, err
}

// ContainsKey reports whether key has a live entry. It does not count as an
// access for idle expiry.
func (r *Region) ContainsKey(ctx context.Context, key any) (bool, error) {
	var found bool
	err := r.observe(ctx, "contains", func(ctx context.Context) error {
		sk, err := r.storeKey(key)
		if err != nil {
			return err
		}
		_, found, err = r.lookup(ctx, sk, false)
		return err
	})
	return found, err
}

// Put stores value under key without expiration and returns the previous
// value, or nil if there was none.
func (r *Region) Put(ctx context.Context, key, value any) (any, error) {
	return r.PutWithExpiration(ctx, key, value, Eternal)
}

// PutWithExpiration stores value under key and returns the previous value, or
// nil if there was none. The previous value is read before the write; the
// pair is not atomic.
func (r *Region) PutWithExpiration(ctx context.Context, key, value any, exp Expiration) (any, error) {
	var prev any
	err := r.observe(ctx, "put", func(ctx context.Context) error {
		sk, data, err := r.prepare(key, value, exp)
		if err != nil {
			return err
		}
		old, ok, err := r.lookup(ctx, sk, false)
		if err != nil {
			return err
		}
		if ok {
			prev = old.Value
		}
		return r.write(ctx, sk, data, exp)
	})
	return prev, err
}

// PutIfAbsent stores value only when key has no live entry. It returns the
// existing value, or nil if value was stored. The check and the write are
// separate store calls, so two concurrent callers may both store.
func (r *Region) PutIfAbsent(ctx context.Context, key, value any, exp Expiration) (any, error) {
	var existing any
	err := r.observe(ctx, "put_if_absent", func(ctx context.Context) error {
		sk, data, err := r.prepare(key, value, exp)
		if err != nil {
			return err
		}
		old, ok, err := r.lookup(ctx, sk, true)
		if err != nil {
			return err
		}
		if ok {
			existing = old.Value
			return nil
		}
		return r.write(ctx, sk, data, exp)
	})
	return existing, err
}

// Remove deletes key and returns the value it held, or nil if there was none.
func (r *Region) Remove(ctx context.Context, key any) (any, error) {
	var prev any
	err := r.observe(ctx, "remove", func(ctx context.Context) error {
		sk, err := r.storeKey(key)
		if err != nil {
			return err
		}
		old, ok, err := r.lookup(ctx, sk, false)
		if err != nil {
			return err
		}
		if ok {
			prev = old.Value
		}
		return r.delete(ctx, sk)
	})
	return prev, err
}

// RemoveIf removes every live entry whose key satisfies pred and reports
// whether anything was removed. Entries written concurrently may be missed.
func (r *Region) RemoveIf(ctx context.Context, pred func(key any) bool) (bool, error) {
	var removed bool
	err := r.observe(ctx, "remove_if", func(ctx context.Context) error {
		it := r.iterate(ctx)
		for it.Next() {
			if !pred(it.Key()) {
				continue
			}
			if err := r.delete(ctx, it.storeKey()); err != nil {
				return err
			}
			removed = true
		}
		return it.Err()
	})
	return removed, err
}

// Keys returns the keys of every live entry.
func (r *Region) Keys(ctx context.Context) ([]any, error) {
	var keys []any
	err := r.observe(ctx, "keys", func(ctx context.Context) error {
		it := r.iterate(ctx)
		for it.Next() {
			keys = append(keys, it.Key())
		}
		return it.Err()
	})
	return keys, err
}

// Clear deletes every indexed entry of this region and empties the index.
// Other regions on the same store are untouched. Deletion continues past
// failures; the failed keys stay indexed and the errors are joined.
func (r *Region) Clear(ctx context.Context) error {
	return r.observe(ctx, "clear", func(ctx context.Context) error {
		var errs []error
		for sk := range r.index.All() {
			if err := r.delete(ctx, sk); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Flush wipes the whole store, every region sharing it included, and empties
// this region's index.
func (r *Region) Flush(ctx context.Context) error {
	return r.observe(ctx, "flush", func(ctx context.Context) error {
		if err := r.client.Flush(ctx); err != nil {
			return err
		}
		r.index.Clear()
		r.log.Warn(ctx, "flushed entire store")
		return nil
	})
}

func (r *Region) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	return r.inst.Observe(ctx, observe.OpMeta{Region: r.name, Op: op}, fn)
}

// storeKey maps a logical key to "<region>:<encoded key>".
func (r *Region) storeKey(key any) (string, error) {
	if key == nil {
		return "", ErrNilKey
	}
	enc, err := r.keys.Encode(key)
	if err != nil {
		return "", err
	}
	sk := r.name + regionSeparator + enc
	if err := store.ValidateKey(sk); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return sk, nil
}

// prepare validates a write and encodes it before any store call is made.
func (r *Region) prepare(key, value any, exp Expiration) (string, []byte, error) {
	if err := exp.Validate(); err != nil {
		return "", nil, err
	}
	if value == nil {
		return "", nil, ErrNilValue
	}
	sk, err := r.storeKey(key)
	if err != nil {
		return "", nil, err
	}

	e := &envelope.Entry{
		HasMetadata:     true,
		Key:             key,
		Value:           value,
		IdleTimeSeconds: exp.idleSeconds(),
		LifeTimeSeconds: exp.lifeSeconds(),
	}
	if e.IdleTimeSeconds > 0 {
		now := r.clock()
		e.StoredAt, e.LastAccessedAt = now, now
	}
	data, err := r.values.Encode(e)
	if err != nil {
		return "", nil, err
	}
	return sk, data, nil
}

func (r *Region) write(ctx context.Context, sk string, data []byte, exp Expiration) error {
	if err := r.client.Set(ctx, sk, data, time.Duration(exp.lifeSeconds())*time.Second); err != nil {
		return err
	}
	r.index.Add(sk)
	return nil
}

func (r *Region) delete(ctx context.Context, sk string) error {
	if err := r.client.Delete(ctx, sk); err != nil {
		return err
	}
	r.index.Remove(sk)
	return nil
}

// clock returns now at the millisecond precision of the wire format.
func (r *Region) clock() time.Time {
	return time.UnixMilli(r.now().UnixMilli())
}

// lookup reads and decodes sk and applies the expiration state machine.
// touch slides the idle window of a live entry.
func (r *Region) lookup(ctx context.Context, sk string, touch bool) (*envelope.Entry, bool, error) {
	data, ok, err := r.client.Get(ctx, sk)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if r.index.Contains(sk) {
			r.index.Remove(sk)
			r.inst.Metrics().RecordEviction(ctx, r.name, observe.EvictMissing)
		}
		return nil, false, nil
	}

	e, err := r.values.Decode(data)
	if err != nil {
		r.log.Warn(ctx, "dropping undecodable entry",
			observe.Field{Key: "store_key", Value: sk},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil, false, r.evict(ctx, sk, observe.EvictCorrupt)
	}
	if !e.HasMetadata || e.IdleTimeSeconds == 0 {
		return e, true, nil
	}

	now := r.clock()
	idle := time.Duration(e.IdleTimeSeconds) * time.Second
	if now.Sub(e.LastAccessedAt) > idle {
		r.log.Debug(ctx, "entry idle expired",
			observe.Field{Key: "store_key", Value: sk},
			observe.Field{Key: "idle_seconds", Value: e.IdleTimeSeconds},
		)
		return nil, false, r.evict(ctx, sk, observe.EvictIdle)
	}
	if !touch {
		return e, true, nil
	}

	var ttl time.Duration
	if e.LifeTimeSeconds > 0 {
		life := time.Duration(e.LifeTimeSeconds) * time.Second
		ttl = (life - now.Sub(e.StoredAt)).Truncate(time.Second)
		if ttl < time.Second {
			return nil, false, r.evict(ctx, sk, observe.EvictLife)
		}
	}
	if now.After(e.LastAccessedAt) {
		e.LastAccessedAt = now
	}
	refreshed, err := r.values.Encode(e)
	if err != nil {
		return nil, false, err
	}
	if err := r.client.Set(ctx, sk, refreshed, ttl); err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// evict deletes sk from the store and the index.
func (r *Region) evict(ctx context.Context, sk, reason string) error {
	if err := r.delete(ctx, sk); err != nil {
		return err
	}
	r.inst.Metrics().RecordEviction(ctx, r.name, reason)
	return nil
}
