package cache

import (
	"time"

	"github.com/jonwraymond/kvregion/envelope"
	"github.com/jonwraymond/kvregion/keycodec"
	"github.com/jonwraymond/kvregion/keyindex"
	"github.com/jonwraymond/kvregion/observe"
)

// Option configures a Region, a Registry or a Service.
type Option func(*options)

type options struct {
	keys    keycodec.Codec
	values  *envelope.Codec
	indexes keyindex.Factory
	now     func() time.Time
	logger  observe.Logger
	inst    *observe.Instrumentation
	policy  Policy
}

func newOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: observe.NopLogger(),
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.values == nil {
		o.values = envelope.NewCodec(nil)
	}
	if o.keys == nil {
		o.keys = keycodec.Default()
	}
	if o.inst == nil {
		o.inst = observe.NewInstrumentation(nil, nil, o.logger)
	}
	if o.indexes == nil {
		o.indexes = keyindex.NewFactory(keyindex.WithLogger(o.logger))
	}
	return o
}

// WithKeyCodec selects the key encoding. Default: keycodec.Default().
func WithKeyCodec(c keycodec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.keys = c
		}
	}
}

// WithValueCodec sets the envelope codec and with it the type registry used
// for values and keys. Default: envelope.NewCodec(nil).
func WithValueCodec(c *envelope.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.values = c
		}
	}
}

// WithIndexFactory sets how each region's key index is created, for example
// to attach a snapshot store.
func WithIndexFactory(f keyindex.Factory) Option {
	return func(o *options) {
		if f != nil {
			o.indexes = f
		}
	}
}

// WithClock overrides the time source used for idle expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger. Regions tag it with their name.
func WithLogger(l observe.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithInstrumentation enables tracing and metrics for every operation.
func WithInstrumentation(in *observe.Instrumentation) Option {
	return func(o *options) {
		if in != nil {
			o.inst = in
		}
	}
}

// WithPolicy sets the max-age policy used by Service.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}
