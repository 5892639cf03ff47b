package cache

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/jonwraymond/kvregion/envelope"
	"github.com/jonwraymond/kvregion/keycodec"
	"github.com/jonwraymond/kvregion/store"
)

func TestRegion_PutThenGet(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "people")
	ctx := context.Background()

	want := person{Forename: "John", Surname: "Mal", Counter: 12}
	if _, err := r.Put(ctx, "testItem", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := r.Get(ctx, "testItem")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v", got, ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Get() = %#v, want %#v", got, want)
	}
	if h.store.lastTTL() != 0 {
		t.Fatalf("eternal put used TTL %s, want 0", h.store.lastTTL())
	}
}

func TestRegion_GetMissing(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")

	v, ok, err := r.Get(context.Background(), "nope")
	if err != nil || ok || v != nil {
		t.Fatalf("Get() = %v, %v, %v; want miss", v, ok, err)
	}
}

func TestRegion_PutReturnsPrevious(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	prev, err := r.Put(ctx, "k", "v1")
	if err != nil || prev != nil {
		t.Fatalf("first Put() = %v, %v; want nil, nil", prev, err)
	}
	prev, err = r.Put(ctx, "k", "v2")
	if err != nil || prev != "v1" {
		t.Fatalf("second Put() = %v, %v; want v1", prev, err)
	}
	if r.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", r.Size())
	}
}

func TestRegion_LifetimeTTL(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	if _, err := r.PutWithExpiration(ctx, "k", "v", ExpireAfter(10*time.Second)); err != nil {
		t.Fatal(err)
	}
	if got := h.store.lastTTL(); got != 10*time.Second {
		t.Fatalf("store TTL = %s, want 10s", got)
	}

	h.clock.Advance(10 * time.Second)
	if _, ok, err := r.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get() after lifetime = %v, %v; want miss", ok, err)
	}
	if r.Size() != 0 {
		t.Fatalf("Size() = %d, want expired key evicted", r.Size())
	}
}

func TestRegion_IdleExpiry(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	if _, err := r.PutWithExpiration(ctx, "k", "v", ExpireIdle(time.Second, 0)); err != nil {
		t.Fatal(err)
	}
	sk, _ := r.storeKey("k")
	storedAt := h.clock.Now()

	h.clock.Advance(500 * time.Millisecond)
	v, ok, err := r.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get() within idle window = %v, %v, %v", v, ok, err)
	}

	raw, _, _ := h.mem.Get(ctx, sk)
	e, err := h.codec.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !e.StoredAt.Equal(storedAt) {
		t.Errorf("StoredAt = %s, want %s", e.StoredAt, storedAt)
	}
	if want := storedAt.Add(500 * time.Millisecond); !e.LastAccessedAt.Equal(want) {
		t.Errorf("LastAccessedAt = %s, want %s", e.LastAccessedAt, want)
	}
	if h.store.lastTTL() != 0 {
		t.Errorf("refresh TTL = %s, want 0 without a lifetime", h.store.lastTTL())
	}

	h.clock.Advance(1500 * time.Millisecond)
	if _, ok, err := r.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get() after idle timeout = %v, %v; want miss", ok, err)
	}
	if r.index.Contains(sk) {
		t.Fatal("idle-expired key still indexed")
	}
	if _, ok, _ := h.mem.Get(ctx, sk); ok {
		t.Fatal("idle-expired entry still in store")
	}
}

func TestRegion_IdleWindowSlides(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	if _, err := r.PutWithExpiration(ctx, "k", "v", ExpireIdle(2*time.Second, 0)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		h.clock.Advance(1500 * time.Millisecond)
		if _, ok, err := r.Get(ctx, "k"); err != nil || !ok {
			t.Fatalf("read %d: Get() = %v, %v; want hit", i, ok, err)
		}
	}
}

func TestRegion_ContainsKeyDoesNotRefresh(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	if _, err := r.PutWithExpiration(ctx, "k", "v", ExpireIdle(2*time.Second, 0)); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(1500 * time.Millisecond)
	if ok, err := r.ContainsKey(ctx, "k"); err != nil || !ok {
		t.Fatalf("ContainsKey() = %v, %v", ok, err)
	}
	h.clock.Advance(1 * time.Second)
	if ok, err := r.ContainsKey(ctx, "k"); err != nil || ok {
		t.Fatalf("ContainsKey() after idle = %v, %v; want false", ok, err)
	}
}

func TestRegion_LifetimeCeiling(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	if _, err := r.PutWithExpiration(ctx, "k", "v", ExpireIdle(2*time.Second, 5*time.Second)); err != nil {
		t.Fatal(err)
	}
	if got := h.store.lastTTL(); got != 5*time.Second {
		t.Fatalf("put TTL = %s, want 5s", got)
	}

	for i := 1; i <= 4; i++ {
		h.clock.Advance(time.Second)
		if _, ok, err := r.Get(ctx, "k"); err != nil || !ok {
			t.Fatalf("t=%ds: Get() = %v, %v; want hit", i, ok, err)
		}
		if want := time.Duration(5-i) * time.Second; h.store.lastTTL() != want {
			t.Fatalf("t=%ds: refresh TTL = %s, want %s", i, h.store.lastTTL(), want)
		}
	}

	h.clock.Advance(500 * time.Millisecond)
	if _, ok, err := r.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get() past lifetime = %v, %v; want miss", ok, err)
	}
	if r.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", r.Size())
	}
}

func TestRegion_InvalidExpirationMakesNoStoreCall(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")

	_, err := r.PutWithExpiration(context.Background(), "k", "v", Expiration{IdleTime: -time.Second})
	if !errors.Is(err, ErrInvalidExpiration) || !errors.Is(err, ErrConfiguration) {
		t.Fatalf("PutWithExpiration() error = %v, want %v", err, ErrInvalidExpiration)
	}
	if h.store.callCount() != 0 {
		t.Fatalf("store calls = %d, want 0", h.store.callCount())
	}
}

func TestRegion_FractionalExpirationRejected(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	for _, exp := range []Expiration{
		ExpireAfter(2500 * time.Millisecond),
		ExpireIdle(1900*time.Millisecond, 0),
	} {
		if _, err := r.PutWithExpiration(ctx, "k", "v", exp); !errors.Is(err, ErrInvalidExpiration) {
			t.Errorf("PutWithExpiration(%+v) error = %v, want %v", exp, err, ErrInvalidExpiration)
		}
		if _, err := r.PutIfAbsent(ctx, "k", "v", exp); !errors.Is(err, ErrInvalidExpiration) {
			t.Errorf("PutIfAbsent(%+v) error = %v, want %v", exp, err, ErrInvalidExpiration)
		}
	}
	if h.store.callCount() != 0 || r.Size() != 0 {
		t.Fatalf("store calls = %d, size = %d; want 0, 0", h.store.callCount(), r.Size())
	}
}

func TestRegion_StoreTTLMatchesEnvelopeLifetime(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	if _, err := r.PutWithExpiration(ctx, "k", "v", ExpireIdle(2*time.Second, 90*time.Second)); err != nil {
		t.Fatal(err)
	}
	sk, err := r.storeKey("k")
	if err != nil {
		t.Fatal(err)
	}
	raw, ok, _ := h.mem.Get(ctx, sk)
	if !ok {
		t.Fatal("value not stored")
	}
	e, err := h.codec.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := h.store.lastTTL(), time.Duration(e.LifeTimeSeconds)*time.Second; got != want {
		t.Fatalf("store TTL = %s, envelope lifetime = %s", got, want)
	}
	if e.IdleTimeSeconds != 2 {
		t.Fatalf("IdleTimeSeconds = %d, want 2", e.IdleTimeSeconds)
	}
}

func TestRegion_EncodingErrorMakesNoStoreCall(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	type unregistered struct{ A int }

	_, err := r.Put(context.Background(), "k", unregistered{A: 1})
	if !errors.Is(err, envelope.ErrEncoding) {
		t.Fatalf("Put() error = %v, want %v", err, envelope.ErrEncoding)
	}
	if h.store.callCount() != 0 || r.Size() != 0 {
		t.Fatalf("store calls = %d, size = %d; want 0, 0", h.store.callCount(), r.Size())
	}
}

func TestRegion_KeyValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r := h.region(t, "r")
	if _, _, err := r.Get(ctx, nil); !errors.Is(err, ErrNilKey) {
		t.Fatalf("Get(nil) error = %v, want %v", err, ErrNilKey)
	}
	if _, err := r.Put(ctx, "k", nil); !errors.Is(err, ErrNilValue) {
		t.Fatalf("Put(nil value) error = %v, want %v", err, ErrNilValue)
	}

	plain, _ := keycodec.New(keycodec.Plain, nil)
	pr := h.region(t, "plain", WithKeyCodec(plain))
	if _, err := pr.Put(ctx, "has space", "v"); !errors.Is(err, ErrInvalidKey) || !errors.Is(err, store.ErrInvalidKey) {
		t.Fatalf("Put() error = %v, want %v", err, ErrInvalidKey)
	}
	if h.store.callCount() != 0 {
		t.Fatalf("store calls = %d, want 0", h.store.callCount())
	}
}

func TestRegion_PutIfAbsent(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	existing, err := r.PutIfAbsent(ctx, "k", "first", Eternal)
	if err != nil || existing != nil {
		t.Fatalf("PutIfAbsent() on empty = %v, %v", existing, err)
	}
	existing, err = r.PutIfAbsent(ctx, "k", "second", Eternal)
	if err != nil || existing != "first" {
		t.Fatalf("PutIfAbsent() on present = %v, %v; want first", existing, err)
	}
	if v, _, _ := r.Get(ctx, "k"); v != "first" {
		t.Fatalf("Get() = %v, want first", v)
	}
}

func TestRegion_Remove(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	_, _ = r.Put(ctx, "k", 42)
	prev, err := r.Remove(ctx, "k")
	if err != nil || prev != 42 {
		t.Fatalf("Remove() = %v, %v; want 42", prev, err)
	}
	if ok, _ := r.ContainsKey(ctx, "k"); ok {
		t.Fatal("key still present after Remove")
	}
	prev, err = r.Remove(ctx, "k")
	if err != nil || prev != nil {
		t.Fatalf("Remove() of absent = %v, %v", prev, err)
	}
	if r.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", r.Size())
	}
}

func TestRegion_RemoveIf(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	_, _ = r.Put(ctx, 5, "abc")
	_, _ = r.Put(ctx, 10, "def")

	removed, err := r.RemoveIf(ctx, func(k any) bool { return k == 10 })
	if err != nil || !removed {
		t.Fatalf("RemoveIf() = %v, %v; want true", removed, err)
	}
	if ok, _ := r.ContainsKey(ctx, 10); ok {
		t.Error("ContainsKey(10) = true after RemoveIf")
	}
	if ok, _ := r.ContainsKey(ctx, 5); !ok {
		t.Error("ContainsKey(5) = false after RemoveIf")
	}

	removed, err = r.RemoveIf(ctx, func(k any) bool { return k == 99 })
	if err != nil || removed {
		t.Fatalf("RemoveIf() with no match = %v, %v; want false", removed, err)
	}
}

func TestRegion_Iterate(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	want := map[any]any{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		if _, err := r.Put(ctx, k, v); err != nil {
			t.Fatal(err)
		}
	}

	got := map[any]any{}
	it := r.Iterate(ctx)
	for it.Next() {
		got[it.Key()] = it.Value()
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("iterated %v, want %v", got, want)
	}
	if it.Next() {
		t.Fatal("iterator restarted after exhaustion")
	}
}

func TestRegion_IterateSkipsMissingEntries(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	_, _ = r.Put(ctx, "gone", "x")
	_, _ = r.Put(ctx, "kept", "y")
	sk, _ := r.storeKey("gone")
	if err := h.mem.Delete(ctx, sk); err != nil {
		t.Fatal(err)
	}

	var keys []any
	for e, err := range r.Entries(ctx) {
		if err != nil {
			t.Fatalf("Entries() error = %v", err)
		}
		keys = append(keys, e.Key)
	}
	if !reflect.DeepEqual(keys, []any{"kept"}) {
		t.Fatalf("keys = %v, want [kept]", keys)
	}
	if r.index.Contains(sk) || r.Size() != 1 {
		t.Fatalf("missing key not evicted from index (size %d)", r.Size())
	}
}

func TestRegion_IterateSkipsIdleExpired(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	_, _ = r.PutWithExpiration(ctx, "idle", "x", ExpireIdle(time.Second, 0))
	_, _ = r.Put(ctx, "eternal", "y")
	h.clock.Advance(2 * time.Second)

	keys, err := r.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []any{"eternal"}) {
		t.Fatalf("Keys() = %v, want [eternal]", keys)
	}
	if r.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", r.Size())
	}
}

func TestRegion_EntriesStopsEarly(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_, _ = r.Put(ctx, k, k)
	}

	n := 0
	for range r.Entries(ctx) {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("iterations = %d, want 1", n)
	}
}

func TestRegion_IterateLegacyEntryWithReversibleKeys(t *testing.T) {
	h := newHarness(t)
	codec, err := keycodec.New(keycodec.Reversible, h.codec.Types())
	if err != nil {
		t.Fatal(err)
	}
	r := h.region(t, "r", WithKeyCodec(codec))
	ctx := context.Background()

	sk, _ := r.storeKey("legacy")
	bare, _ := h.codec.EncodeValue("old value")
	_ = h.mem.Set(ctx, sk, bare, 0)
	r.index.Add(sk)

	entries := map[any]any{}
	for e, err := range r.Entries(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		entries[e.Key] = e.Value
	}
	if entries["legacy"] != "old value" {
		t.Fatalf("entries = %v, want legacy entry recovered", entries)
	}
}

func TestRegion_UndecodableEntryIsMiss(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()

	sk, _ := r.storeKey("k")
	_ = h.mem.Set(ctx, sk, []byte{1, 0, 9, 'n', 'o', 't', '-', 'a', '-', 't', 'a', 'g'}, 0)
	r.index.Add(sk)

	v, ok, err := r.Get(ctx, "k")
	if err != nil || ok || v != nil {
		t.Fatalf("Get() = %v, %v, %v; want miss", v, ok, err)
	}
	if _, ok, _ := h.mem.Get(ctx, sk); ok {
		t.Fatal("corrupt entry not deleted")
	}
	if r.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", r.Size())
	}
}

func TestRegion_StoreErrorsSurface(t *testing.T) {
	h := newHarness(t)
	r := h.region(t, "r")
	ctx := context.Background()
	_, _ = r.Put(ctx, "k", "v")

	h.store.setFail(errStoreDown)

	if _, _, err := r.Get(ctx, "k"); !errors.Is(err, store.ErrStore) {
		t.Errorf("Get() error = %v, want %v", err, store.ErrStore)
	}
	if _, err := r.Put(ctx, "k", "v2"); !errors.Is(err, store.ErrStore) {
		t.Errorf("Put() error = %v, want %v", err, store.ErrStore)
	}
	if _, err := r.Remove(ctx, "k"); !errors.Is(err, store.ErrStore) {
		t.Errorf("Remove() error = %v, want %v", err, store.ErrStore)
	}
	if err := r.Clear(ctx); !errors.Is(err, store.ErrStore) {
		t.Errorf("Clear() error = %v, want %v", err, store.ErrStore)
	}
	it := r.Iterate(ctx)
	if it.Next() || !errors.Is(it.Err(), store.ErrStore) {
		t.Errorf("Iterate() error = %v, want %v", it.Err(), store.ErrStore)
	}
	if r.Size() != 1 {
		t.Errorf("Size() = %d; a failed operation must not drop the key", r.Size())
	}
}

func TestRegion_ClearIsRegionScoped(t *testing.T) {
	h := newHarness(t)
	a := h.region(t, "a")
	b := h.region(t, "b")
	ctx := context.Background()

	_, _ = a.Put(ctx, "k", "a-value")
	_, _ = a.Put(ctx, "k2", "a-value")
	_, _ = b.Put(ctx, "k", "b-value")

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if a.Size() != 0 {
		t.Fatalf("a.Size() = %d, want 0", a.Size())
	}
	if ok, _ := a.ContainsKey(ctx, "k"); ok {
		t.Fatal("a still holds k")
	}
	if v, ok, _ := b.Get(ctx, "k"); !ok || v != "b-value" {
		t.Fatalf("b.Get() = %v, %v; other region must survive Clear", v, ok)
	}
}

func TestRegion_FlushIsStoreWide(t *testing.T) {
	h := newHarness(t)
	a := h.region(t, "a")
	b := h.region(t, "b")
	ctx := context.Background()

	_, _ = a.Put(ctx, "k", 1)
	_, _ = b.Put(ctx, "k", 2)

	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if a.Size() != 0 {
		t.Fatalf("a.Size() = %d, want 0", a.Size())
	}
	if ok, _ := b.ContainsKey(ctx, "k"); ok {
		t.Fatal("Flush must wipe every region")
	}
}

func TestRegion_SameKeyDifferentRegions(t *testing.T) {
	h := newHarness(t)
	a := h.region(t, "a")
	b := h.region(t, "b")
	ctx := context.Background()

	_, _ = a.Put(ctx, "k", "from-a")
	_, _ = b.Put(ctx, "k", "from-b")

	va, _, _ := a.Get(ctx, "k")
	vb, _, _ := b.Get(ctx, "k")
	if va != "from-a" || vb != "from-b" {
		t.Fatalf("a=%v b=%v; regions must not share keys", va, vb)
	}
}

func TestRegion_PersistRestore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	snaps := newMapSnapshots()

	r := h.region(t, "r", WithIndexFactory(keyIndexFactory(snaps)))
	_, _ = r.Put(ctx, "a", 1)
	_, _ = r.Put(ctx, "b", 2)
	if err := r.Persist(ctx); err != nil {
		t.Fatal(err)
	}

	again := h.region(t, "r", WithIndexFactory(keyIndexFactory(snaps)))
	if err := again.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	keys, err := again.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].(string) < keys[j].(string) })
	if !reflect.DeepEqual(keys, []any{"a", "b"}) {
		t.Fatalf("Keys() = %v, want [a b]", keys)
	}
}
