package resilience

import (
	"context"
	"time"

	"github.com/jonwraymond/kvregion/observe"
	"github.com/jonwraymond/kvregion/store"
)

// ClientConfig configures Client.
type ClientConfig struct {
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig

	// Logger receives retry and breaker state changes. Default: no-op.
	Logger observe.Logger
}

// Client decorates a store.Client with retries and a circuit breaker.
// Each attempt passes through the breaker, so an open circuit ends the
// retry loop immediately with ErrCircuitOpen.
type Client struct {
	inner   store.Client
	retry   *Retry
	breaker *CircuitBreaker
}

var _ store.Client = (*Client)(nil)

// NewClient wraps inner.
func NewClient(inner store.Client, cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = observe.NopLogger()
	}

	retryCfg := cfg.Retry
	onRetry := retryCfg.OnRetry
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Debug(context.Background(), "retrying store operation",
			observe.Field{Key: "attempt", Value: attempt},
			observe.Field{Key: "delay", Value: delay.String()},
			observe.Field{Key: "error", Value: err.Error()},
		)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}

	cbCfg := cfg.CircuitBreaker
	onChange := cbCfg.OnStateChange
	cbCfg.OnStateChange = func(from, to State) {
		logger.Warn(context.Background(), "store circuit state changed",
			observe.Field{Key: "from", Value: from.String()},
			observe.Field{Key: "to", Value: to.String()},
		)
		if onChange != nil {
			onChange(from, to)
		}
	}

	return &Client{
		inner:   inner,
		retry:   NewRetry(retryCfg),
		breaker: NewCircuitBreaker(cbCfg),
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Get retrieves a value from the wrapped store.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		ok    bool
	)
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		value, ok, err = c.inner.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, ok, nil
}

// Set stores a value in the wrapped store.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.inner.Set(ctx, key, value, ttl)
	})
}

// Delete removes a value from the wrapped store.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.inner.Delete(ctx, key)
	})
}

// Flush empties the wrapped store.
func (c *Client) Flush(ctx context.Context) error {
	return c.do(ctx, c.inner.Flush)
}

// Ping checks connectivity when the wrapped store supports it. The breaker
// is bypassed so health probes still reach an open circuit's backend.
func (c *Client) Ping(ctx context.Context) error {
	if p, ok := c.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op func(context.Context) error) error {
	return c.retry.Execute(ctx, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, op)
	})
}
