package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/kvregion/envelope"
	"github.com/jonwraymond/kvregion/keyindex"
	"github.com/jonwraymond/kvregion/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// person is a registered struct value type.
type person struct {
	Forename string `json:"forename"`
	Surname  string `json:"surname"`
	Counter  int    `json:"counter"`
}

func testCodec(t testing.TB) *envelope.Codec {
	t.Helper()
	types := envelope.NewTypeRegistry()
	if err := envelope.Register[person](types, "person"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return envelope.NewCodec(types)
}

// recordingStore wraps a client, recording Set TTLs and failing on demand.
type recordingStore struct {
	store.Client

	mu    sync.Mutex
	calls int
	ttls  []time.Duration
	fail  error
}

func (s *recordingStore) record(ttl *time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if ttl != nil {
		s.ttls = append(s.ttls, *ttl)
	}
	return s.fail
}

func (s *recordingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.record(nil); err != nil {
		return nil, false, err
	}
	return s.Client.Get(ctx, key)
}

func (s *recordingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.record(&ttl); err != nil {
		return err
	}
	return s.Client.Set(ctx, key, value, ttl)
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	if err := s.record(nil); err != nil {
		return err
	}
	return s.Client.Delete(ctx, key)
}

func (s *recordingStore) Flush(ctx context.Context) error {
	if err := s.record(nil); err != nil {
		return err
	}
	return s.Client.Flush(ctx)
}

func (s *recordingStore) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *recordingStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *recordingStore) lastTTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ttls) == 0 {
		return -1
	}
	return s.ttls[len(s.ttls)-1]
}

var errStoreDown = fmt.Errorf("%w: connection refused", store.ErrStore)

type harness struct {
	clock *fakeClock
	mem   *store.MemoryStore
	store *recordingStore
	codec *envelope.Codec
}

func newHarness(t testing.TB) *harness {
	t.Helper()
	clock := newFakeClock()
	mem := store.NewMemoryStore(store.WithMemoryClock(clock.Now))
	return &harness{
		clock: clock,
		mem:   mem,
		store: &recordingStore{Client: mem},
		codec: testCodec(t),
	}
}

func (h *harness) options(extra ...Option) []Option {
	return append([]Option{WithClock(h.clock.Now), WithValueCodec(h.codec)}, extra...)
}

func (h *harness) region(t testing.TB, name string, extra ...Option) *Region {
	t.Helper()
	r, err := NewRegion(name, h.store, h.options(extra...)...)
	if err != nil {
		t.Fatalf("NewRegion(%q) error = %v", name, err)
	}
	return r
}

func (h *harness) registry(extra ...Option) *Registry {
	return NewRegistry(h.store, h.options(extra...)...)
}

// mapSnapshots is an in-memory keyindex.SnapshotStore.
type mapSnapshots struct {
	mu      sync.Mutex
	snaps   map[string]keyindex.Snapshot
	loads   int
	loadErr error
	saveErr error
}

func newMapSnapshots() *mapSnapshots {
	return &mapSnapshots{snaps: make(map[string]keyindex.Snapshot)}
}

func (m *mapSnapshots) Load(_ context.Context, name string) (keyindex.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return keyindex.Snapshot{}, m.loadErr
	}
	s, ok := m.snaps[name]
	if !ok {
		return keyindex.Snapshot{}, keyindex.ErrNoSnapshot
	}
	return s, nil
}

func (m *mapSnapshots) Save(_ context.Context, snap keyindex.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snaps[snap.Name] = snap
	return nil
}

func keyIndexFactory(s keyindex.SnapshotStore) keyindex.Factory {
	return keyindex.NewFactory(keyindex.WithSnapshots(s))
}
