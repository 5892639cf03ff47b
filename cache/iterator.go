package cache

import (
	"context"
	"iter"
)

// Iterator walks the live entries of a region once.
//
// It iterates over the key index as it was when Iterate was called. Keys
// whose entry is gone or idle-expired are skipped and dropped from the index.
// Yielded entries count as accessed for idle expiry. Iteration stops at the
// first store error, which Err then returns.
type Iterator struct {
	region *Region
	ctx    context.Context
	keys   []string
	pos    int
	cur    Entry
	curKey string
	err    error
}

// Iterate returns an iterator over the live entries of the region.
func (r *Region) Iterate(ctx context.Context) *Iterator {
	return r.iterate(ctx)
}

func (r *Region) iterate(ctx context.Context) *Iterator {
	return &Iterator{region: r, ctx: ctx, keys: r.index.Keys()}
}

// Next advances to the next live entry and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.pos < len(it.keys) {
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		sk := it.keys[it.pos]
		it.pos++

		e, ok, err := it.region.lookup(it.ctx, sk, true)
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			continue
		}
		key := e.Key
		if key == nil {
			// Written without metadata; only a decodable key codec can name it.
			k, err := it.region.keys.Decode(sk[len(it.region.name)+len(regionSeparator):])
			if err != nil {
				continue
			}
			key = k
		}
		it.cur = Entry{Key: key, Value: e.Value}
		it.curKey = sk
		return true
	}
	it.cur, it.curKey = Entry{}, ""
	return false
}

// Entry returns the current entry.
func (it *Iterator) Entry() Entry {
	return it.cur
}

// Key returns the key of the current entry.
func (it *Iterator) Key() any {
	return it.cur.Key
}

// Value returns the value of the current entry.
func (it *Iterator) Value() any {
	return it.cur.Value
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) storeKey() string {
	return it.curKey
}

// Entries returns the live entries as a single-use sequence. A failure is
// yielded last, paired with a zero Entry.
func (r *Region) Entries(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		it := r.iterate(ctx)
		for it.Next() {
			if !yield(it.Entry(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(Entry{}, err)
		}
	}
}
