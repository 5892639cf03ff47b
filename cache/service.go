package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/kvregion/envelope"
	"github.com/jonwraymond/kvregion/keycodec"
	"github.com/jonwraymond/kvregion/observe"
	"github.com/jonwraymond/kvregion/store"
)

// serviceRegion names the service in telemetry.
const serviceRegion = "service"

// Service is a flat key/value cache without regions, indexes or idle expiry.
// Keys may be any value the key codec can encode.
// Values are stored without metadata and expire after a max age chosen by
// its Policy.
type Service struct {
	client store.Client
	keys   keycodec.Codec
	values *envelope.Codec
	policy Policy
	inst   *observe.Instrumentation
}

// NewService creates a service over client. WithKeyCodec, WithValueCodec,
// WithPolicy, WithLogger and WithInstrumentation apply.
func NewService(client store.Client, opts ...Option) *Service {
	o := newOptions(opts)
	return &Service{
		client: client,
		keys:   o.keys,
		values: o.values,
		policy: o.policy,
		inst:   o.inst,
	}
}

// Store caches value under key for the policy's default max age.
func (s *Service) Store(ctx context.Context, key, value any) error {
	return s.StoreFor(ctx, key, value, 0)
}

// StoreFor caches value under key for maxAge, clamped by the policy. A
// non-positive maxAge selects the default. The effective max age must be a
// whole number of seconds.
func (s *Service) StoreFor(ctx context.Context, key, value any, maxAge time.Duration) error {
	return s.observe(ctx, "store", func(ctx context.Context) error {
		sk, err := s.storeKey(key)
		if err != nil {
			return err
		}
		if value == nil {
			return ErrNilValue
		}
		data, err := s.values.EncodeValue(value)
		if err != nil {
			return err
		}
		ttl := s.policy.EffectiveTTL(maxAge)
		if ttl > 0 && ttl < time.Second {
			return fmt.Errorf("%w: max age %s is below 1s", ErrInvalidExpiration, ttl)
		}
		if ttl%time.Second != 0 {
			return fmt.Errorf("%w: max age %s is not whole seconds", ErrInvalidExpiration, ttl)
		}
		return s.client.Set(ctx, sk, data, ttl)
	})
}

// Read returns the value cached under key. Undecodable values are deleted
// and reported as misses.
func (s *Service) Read(ctx context.Context, key any) (any, bool, error) {
	var (
		value any
		found bool
	)
	err := s.observe(ctx, "read", func(ctx context.Context) error {
		sk, err := s.storeKey(key)
		if err != nil {
			return err
		}
		data, ok, err := s.client.Get(ctx, sk)
		if err != nil || !ok {
			s.inst.Metrics().RecordLookup(ctx, serviceRegion, false)
			return err
		}
		v, err := s.values.DecodeValue(data)
		if err != nil {
			s.inst.Logger().Warn(ctx, "dropping undecodable value",
				observe.Field{Key: "store_key", Value: sk},
				observe.Field{Key: "error", Value: err.Error()},
			)
			s.inst.Metrics().RecordEviction(ctx, serviceRegion, observe.EvictCorrupt)
			s.inst.Metrics().RecordLookup(ctx, serviceRegion, false)
			return s.client.Delete(ctx, sk)
		}
		s.inst.Metrics().RecordLookup(ctx, serviceRegion, true)
		value, found = v, true
		return nil
	})
	return value, found, err
}

// Remove deletes key and returns the value it held, or nil if it was absent
// or undecodable. Removing an absent key is not an error.
func (s *Service) Remove(ctx context.Context, key any) (any, error) {
	var previous any
	err := s.observe(ctx, "remove", func(ctx context.Context) error {
		sk, err := s.storeKey(key)
		if err != nil {
			return err
		}
		data, ok, err := s.client.Get(ctx, sk)
		if err != nil {
			return err
		}
		if ok {
			if v, err := s.values.DecodeValue(data); err == nil {
				previous = v
			}
		}
		return s.client.Delete(ctx, sk)
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// Clear wipes the whole store.
func (s *Service) Clear(ctx context.Context) error {
	return s.observe(ctx, "clear", func(ctx context.Context) error {
		return s.client.Flush(ctx)
	})
}

func (s *Service) storeKey(key any) (string, error) {
	if key == nil {
		return "", ErrNilKey
	}
	enc, err := s.keys.Encode(key)
	if err != nil {
		return "", err
	}
	if err := store.ValidateKey(enc); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return enc, nil
}

func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	return s.inst.Observe(ctx, observe.OpMeta{Region: serviceRegion, Op: op}, fn)
}
