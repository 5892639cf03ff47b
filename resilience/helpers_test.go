package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/kvregion/store"
)

var errDown = fmt.Errorf("%w: connection refused", store.ErrStore)

// flakyStore fails the first n calls, then delegates to a memory store.
type flakyStore struct {
	mu    sync.Mutex
	inner *store.MemoryStore
	fails int
	calls int
	err   error
}

func newFlakyStore(fails int) *flakyStore {
	return &flakyStore{inner: store.NewMemoryStore(), fails: fails, err: errDown}
}

func (f *flakyStore) step() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails != 0 {
		if f.fails > 0 {
			f.fails--
		}
		return f.err
	}
	return nil
}

func (f *flakyStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := f.step(); err != nil {
		return nil, false, err
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.step(); err != nil {
		return err
	}
	return f.inner.Set(ctx, key, value, ttl)
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	if err := f.step(); err != nil {
		return err
	}
	return f.inner.Delete(ctx, key)
}

func (f *flakyStore) Flush(ctx context.Context) error {
	if err := f.step(); err != nil {
		return err
	}
	return f.inner.Flush(ctx)
}

func (f *flakyStore) Ping(context.Context) error {
	return errors.New("ping")
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func noSleep(context.Context, time.Duration) error { return nil }
