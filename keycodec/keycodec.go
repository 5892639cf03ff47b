package keycodec

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/jonwraymond/kvregion/envelope"
)

// Sentinel errors for key codecs.
var (
	ErrUnsupported     = errors.New("keycodec: decode not supported by strategy")
	ErrEncoding        = errors.New("keycodec: key cannot be encoded")
	ErrDecoding        = errors.New("keycodec: key cannot be decoded")
	ErrUnknownStrategy = errors.New("keycodec: unknown strategy")
)

// Strategy selects a key encoding.
type Strategy int

const (
	// Hashed is the SHA-1 hex digest of the Plain encoding. It is the default.
	Hashed Strategy = iota
	// Plain is the canonical JSON text of the key.
	Plain
	// Reversible is the envelope binary form of the key, base64 encoded.
	Reversible
	// HashedReversible is the SHA-1 hex digest of the envelope binary form.
	HashedReversible
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case Hashed:
		return "hashed"
	case Plain:
		return "plain"
	case Reversible:
		return "reversible"
	case HashedReversible:
		return "hashed_reversible"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a configuration name. Empty selects Hashed.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hashed", "hashed_json":
		return Hashed, nil
	case "plain", "json":
		return Plain, nil
	case "reversible", "serialize":
		return Reversible, nil
	case "hashed_reversible", "hashed_serialize":
		return HashedReversible, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Codec maps logical keys to store keys.
//
// Plain and Hashed encode the JSON text of a key, so keys of different Go
// types with the same JSON form, such as int(10) and int64(10) or a struct and
// the equivalent map, share one store key. Reversible and HashedReversible
// include the type tag and keep them apart.
//
// Contract:
// - Determinism: equal keys always encode to the same string.
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Decode returns ErrUnsupported unless Decodable reports true.
type Codec interface {
	Encode(key any) (string, error)
	Decode(encoded string) (any, error)
	Decodable() bool
	Strategy() Strategy
}

// New returns the codec for strategy. types resolves key types for the
// binary strategies; nil selects the builtin registry.
func New(strategy Strategy, types *envelope.TypeRegistry) (Codec, error) {
	switch strategy {
	case Hashed:
		return hashedCodec{}, nil
	case Plain:
		return plainCodec{}, nil
	case Reversible:
		return reversibleCodec{values: envelope.NewCodec(types)}, nil
	case HashedReversible:
		return hashedReversibleCodec{values: envelope.NewCodec(types)}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(strategy))
	}
}

// Default returns the Hashed codec.
func Default() Codec {
	return hashedCodec{}
}

type plainCodec struct{}

func (plainCodec) Encode(key any) (string, error) {
	data, err := Canonicalize(key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (plainCodec) Decode(string) (any, error) { return nil, ErrUnsupported }
func (plainCodec) Decodable() bool            { return false }
func (plainCodec) Strategy() Strategy         { return Plain }

type hashedCodec struct{}

func (hashedCodec) Encode(key any) (string, error) {
	data, err := Canonicalize(key)
	if err != nil {
		return "", err
	}
	return sha1Hex(data), nil
}

func (hashedCodec) Decode(string) (any, error) { return nil, ErrUnsupported }
func (hashedCodec) Decodable() bool            { return false }
func (hashedCodec) Strategy() Strategy         { return Hashed }

type reversibleCodec struct {
	values *envelope.Codec
}

func (c reversibleCodec) Encode(key any) (string, error) {
	data, err := encodeBinary(c.values, key)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func (c reversibleCodec) Decode(encoded string) (any, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoding, err)
	}
	key, err := c.values.DecodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoding, err)
	}
	return key, nil
}

func (reversibleCodec) Decodable() bool    { return true }
func (reversibleCodec) Strategy() Strategy { return Reversible }

type hashedReversibleCodec struct {
	values *envelope.Codec
}

func (c hashedReversibleCodec) Encode(key any) (string, error) {
	data, err := encodeBinary(c.values, key)
	if err != nil {
		return "", err
	}
	return sha1Hex(data), nil
}

func (hashedReversibleCodec) Decode(string) (any, error) { return nil, ErrUnsupported }
func (hashedReversibleCodec) Decodable() bool            { return false }
func (hashedReversibleCodec) Strategy() Strategy         { return HashedReversible }

func encodeBinary(values *envelope.Codec, key any) ([]byte, error) {
	data, err := values.EncodeValue(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return data, nil
}

func sha1Hex(data []byte) string {
	// #nosec G401 -- SHA-1 bounds key length; it is not a security boundary.
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Ensure codecs implement Codec
var (
	_ Codec = plainCodec{}
	_ Codec = hashedCodec{}
	_ Codec = reversibleCodec{}
	_ Codec = hashedReversibleCodec{}
)
