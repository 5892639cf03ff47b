package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// maxRelativeExpiration is the largest TTL memcached treats as relative.
// Larger values are interpreted as an absolute unix timestamp.
const maxRelativeExpiration = 30 * 24 * time.Hour

// memcacheConn is the subset of *memcache.Client used by Memcache.
type memcacheConn interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
	FlushAll() error
	Ping() error
}

// MemcacheConfig configures the memcached adapter.
type MemcacheConfig struct {
	// Servers lists host:port addresses. Required.
	Servers []string

	// Timeout is the per-operation socket timeout.
	// Default: memcache.DefaultTimeout
	Timeout time.Duration

	// MaxIdleConns bounds idle connections per server.
	// Default: memcache.DefaultMaxIdleConns
	MaxIdleConns int
}

// Memcache is a Client backed by memcached. The client's Timeout is the
// only operation timeout; contexts are checked before each call.
type Memcache struct {
	conn memcacheConn
	now  func() time.Time
}

// NewMemcache connects a memcached client to the configured servers.
func NewMemcache(cfg MemcacheConfig) (*Memcache, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("store: memcache servers are required")
	}
	mc := memcache.New(cfg.Servers...)
	if cfg.Timeout > 0 {
		mc.Timeout = cfg.Timeout
	}
	if cfg.MaxIdleConns > 0 {
		mc.MaxIdleConns = cfg.MaxIdleConns
	}
	return newMemcache(mc), nil
}

func newMemcache(conn memcacheConn) *Memcache {
	return &Memcache{conn: conn, now: time.Now}
}

// Get retrieves a value. Returns (nil, false, nil) on miss.
func (m *Memcache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, wrapErr("get", key, err)
	}
	item, err := m.conn.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapErr("get", key, err)
	}
	return item.Value, true, nil
}

// Set stores a value. TTL=0 means the entry never expires.
func (m *Memcache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return wrapErr("set", key, err)
	}
	if ttl < 0 {
		return wrapErr("set", key, errNegativeTTL)
	}
	item := &memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: m.expiration(ttl),
	}
	if err := m.conn.Set(item); err != nil {
		return wrapErr("set", key, err)
	}
	return nil
}

// Delete removes a value. Idempotent - no error on miss.
func (m *Memcache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return wrapErr("delete", key, err)
	}
	err := m.conn.Delete(key)
	if err == nil || errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return wrapErr("delete", key, err)
}

// Flush wipes every server.
func (m *Memcache) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return wrapErr("flush", "", err)
	}
	if err := m.conn.FlushAll(); err != nil {
		return wrapErr("flush", "", err)
	}
	return nil
}

// Ping checks that every server is reachable.
func (m *Memcache) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return wrapErr("ping", "", err)
	}
	if err := m.conn.Ping(); err != nil {
		return wrapErr("ping", "", err)
	}
	return nil
}

// expiration converts a TTL to memcached's expiration field. Sub-second
// remainders are dropped; a positive TTL never rounds down to 0 (never expire).
// Absolute expirations beyond the protocol's int32 range are clamped.
func (m *Memcache) expiration(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl > maxRelativeExpiration {
		at := m.now().Add(ttl).Unix()
		if at > math.MaxInt32 || at < 0 {
			return math.MaxInt32
		}
		return int32(at)
	}
	secs := int32(ttl / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}

// Ensure Memcache implements Client
var _ Client = (*Memcache)(nil)
