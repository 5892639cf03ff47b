package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/kvregion/store"
)

// countingLoader tracks calls and returns configured results.
type countingLoader struct {
	calls atomic.Int32
	value any
	err   error
}

func (l *countingLoader) load(_ context.Context, _ any) (any, error) {
	l.calls.Add(1)
	return l.value, l.err
}

func TestReadThrough_Hit(t *testing.T) {
	h := newHarness(t)
	rt := NewReadThrough(h.region(t, "r"), ExpireAfter(time.Minute))
	loader := &countingLoader{value: "loaded"}
	ctx := context.Background()

	v, err := rt.Get(ctx, "k", loader.load)
	if err != nil || v != "loaded" {
		t.Fatalf("first Get() = %v, %v", v, err)
	}
	v, err = rt.Get(ctx, "k", loader.load)
	if err != nil || v != "loaded" {
		t.Fatalf("second Get() = %v, %v", v, err)
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("loader calls = %d, want 1", got)
	}
	if h.store.lastTTL() != time.Minute {
		t.Fatalf("TTL = %s, want 1m", h.store.lastTTL())
	}
}

func TestReadThrough_ErrorsNotCached(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	rt := NewReadThrough(r, Eternal)
	boom := errors.New("backend down")
	loader := &countingLoader{err: boom}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := rt.Get(ctx, "k", loader.load); !errors.Is(err, boom) {
			t.Fatalf("Get() error = %v, want %v", err, boom)
		}
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("loader calls = %d, want 2", got)
	}
	if r.Size() != 0 {
		t.Fatalf("Size() = %d, errors must not be cached", r.Size())
	}
}

func TestReadThrough_StoreReadErrorSkipsLoad(t *testing.T) {
	h := newHarness(t)
	rt := NewReadThrough(h.region(t, "r"), Eternal)
	loader := &countingLoader{value: "v"}
	h.store.setFail(errStoreDown)

	if _, err := rt.Get(context.Background(), "k", loader.load); !errors.Is(err, store.ErrStore) {
		t.Fatalf("Get() error = %v, want %v", err, store.ErrStore)
	}
	if loader.calls.Load() != 0 {
		t.Fatal("loader called despite store failure")
	}
}

func TestReadThrough_WriteFailureStillReturnsValue(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	rt := NewReadThrough(r, Eternal)
	type unregistered struct{ N int }
	loader := &countingLoader{value: unregistered{N: 1}}

	v, err := rt.Get(context.Background(), "k", loader.load)
	if err != nil || v != (unregistered{N: 1}) {
		t.Fatalf("Get() = %v, %v", v, err)
	}
	if r.Size() != 0 {
		t.Fatal("unencodable value was indexed")
	}
}

func TestReadThrough_ConcurrentMissesShareLoad(t *testing.T) {
	h := newHarness(t)
	rt := NewReadThrough(h.region(t, "r"), Eternal)
	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context, any) (any, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	const n = 8
	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer done.Done()
			started.Done()
			if v, err := rt.Get(context.Background(), "k", load); err != nil || v != "v" {
				t.Errorf("Get() = %v, %v", v, err)
			}
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	// Callers arriving after the shared load finished hit the cache instead.
	if got := calls.Load(); got != 1 {
		t.Fatalf("loader calls = %d, want 1", got)
	}
}

func TestReadThrough_InvalidExpiration(t *testing.T) {
	h := newHarness(t)
	rt := NewReadThrough(h.region(t, "r"), Expiration{LifeTime: -1})
	if _, err := rt.Get(context.Background(), "k", (&countingLoader{value: 1}).load); !errors.Is(err, ErrInvalidExpiration) {
		t.Fatalf("Get() error = %v, want %v", err, ErrInvalidExpiration)
	}
}
