package cache

import (
	"fmt"
	"time"
)

// Expiration pairs a hard lifetime with a sliding idle timeout.
//
// LifeTime is the store-level TTL and bounds the entry from the moment it is
// put. IdleTime, when set, also expires the entry after that long without a
// read; reads slide the window but never past LifeTime. Zero disables either
// timeout. Both are whole seconds at the store, so values that are not a
// whole number of seconds are rejected.
type Expiration struct {
	LifeTime time.Duration
	IdleTime time.Duration
}

// Eternal never expires.
var Eternal = Expiration{}

// ExpireAfter expires an entry life after it is put.
func ExpireAfter(life time.Duration) Expiration {
	return Expiration{LifeTime: life}
}

// ExpireIdle expires an entry after idle without reads, and at the latest
// life after it is put. A zero life means no hard limit.
func ExpireIdle(idle, life time.Duration) Expiration {
	return Expiration{LifeTime: life, IdleTime: idle}
}

// Validate rejects negative timeouts and timeouts that are not whole seconds.
func (e Expiration) Validate() error {
	if e.LifeTime < 0 || e.IdleTime < 0 {
		return fmt.Errorf("%w: negative timeout (life=%s, idle=%s)", ErrInvalidExpiration, e.LifeTime, e.IdleTime)
	}
	if (e.LifeTime > 0 && e.LifeTime < time.Second) || (e.IdleTime > 0 && e.IdleTime < time.Second) {
		return fmt.Errorf("%w: timeouts must be zero or at least 1s (life=%s, idle=%s)", ErrInvalidExpiration, e.LifeTime, e.IdleTime)
	}
	if e.LifeTime%time.Second != 0 || e.IdleTime%time.Second != 0 {
		return fmt.Errorf("%w: timeouts must be whole seconds (life=%s, idle=%s)", ErrInvalidExpiration, e.LifeTime, e.IdleTime)
	}
	return nil
}

// IsEternal reports whether neither timeout is set.
func (e Expiration) IsEternal() bool {
	return e.LifeTime == 0 && e.IdleTime == 0
}

func (e Expiration) lifeSeconds() int64 { return int64(e.LifeTime / time.Second) }
func (e Expiration) idleSeconds() int64 { return int64(e.IdleTime / time.Second) }

// Policy configures the max age applied by Service.
type Policy struct {
	// DefaultMaxAge is used when a call does not name one.
	// If zero, values never expire by default.
	DefaultMaxAge time.Duration

	// MaxAge clamps every max age. If zero, no maximum is enforced.
	MaxAge time.Duration
}

// DefaultPolicy returns the default service policy.
// DefaultMaxAge: 1 hour, MaxAge: 30 days
func DefaultPolicy() Policy {
	return Policy{
		DefaultMaxAge: time.Hour,
		MaxAge:        30 * 24 * time.Hour,
	}
}

// EffectiveTTL returns the TTL to use, applying the default and clamping.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultMaxAge
	}
	if p.MaxAge > 0 && (ttl == 0 || ttl > p.MaxAge) {
		ttl = p.MaxAge
	}
	return ttl
}
