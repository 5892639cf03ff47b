package health

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonwraymond/kvregion/store"
)

// StoreCheckerConfig configures StoreChecker.
type StoreCheckerConfig struct {
	// ProbeKey is the store key written by the check.
	// Default: "kvregion:health:probe"
	ProbeKey string

	// SlowThreshold reports Degraded when the round trip takes longer.
	// Default: 250ms
	SlowThreshold time.Duration
}

// StoreChecker verifies that the store accepts writes and returns them.
//
// Each check pings the client when it implements Pinger, then sets a probe
// key with a one second TTL, reads it back and deletes it.
type StoreChecker struct {
	client store.Client
	config StoreCheckerConfig
	now    func() time.Time
}

// NewStoreChecker creates a checker for client.
func NewStoreChecker(client store.Client, config StoreCheckerConfig) *StoreChecker {
	if config.ProbeKey == "" {
		config.ProbeKey = "kvregion:health:probe"
	}
	if config.SlowThreshold <= 0 {
		config.SlowThreshold = 250 * time.Millisecond
	}
	return &StoreChecker{client: client, config: config, now: time.Now}
}

// Name returns the name of this checker.
func (c *StoreChecker) Name() string {
	return "store"
}

// Check performs the probe round trip.
func (c *StoreChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}
	start := c.now()

	if p, ok := c.client.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return Unhealthy("store ping failed", err)
		}
	}

	want := []byte(strconv.FormatInt(start.UnixNano(), 10))
	if err := c.client.Set(ctx, c.config.ProbeKey, want, time.Second); err != nil {
		return Unhealthy("store write failed", err)
	}
	got, ok, err := c.client.Get(ctx, c.config.ProbeKey)
	if err != nil {
		return Unhealthy("store read failed", err)
	}
	if !ok || !bytes.Equal(got, want) {
		return Unhealthy("store returned a stale probe", fmt.Errorf("%w: key %q", ErrProbeMismatch, c.config.ProbeKey))
	}
	if err := c.client.Delete(ctx, c.config.ProbeKey); err != nil {
		return Unhealthy("store delete failed", err)
	}

	elapsed := c.now().Sub(start)
	details := map[string]any{"round_trip": elapsed.String()}
	if elapsed > c.config.SlowThreshold {
		return Degraded(fmt.Sprintf("store round trip %s exceeds %s", elapsed, c.config.SlowThreshold)).WithDetails(details)
	}
	return Healthy("store round trip ok").WithDetails(details)
}

var _ Checker = (*StoreChecker)(nil)
