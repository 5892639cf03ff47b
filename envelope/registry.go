package envelope

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Decoder turns the JSON payload of one type tag back into a value.
type Decoder interface {
	Decode(data []byte) (any, error)
}

// JSONDecoder decodes payloads into T.
type JSONDecoder[T any] struct{}

// Decode unmarshals data into a fresh T.
func (JSONDecoder[T]) Decode(data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// TypeRegistry maps type tags to Go types and decoders.
//
// Contract:
// - Concurrency: safe for concurrent use; registration normally happens at startup.
// - Determinism: a type has exactly one tag and a tag exactly one decoder.
type TypeRegistry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
	tags     map[reflect.Type]string
}

// NewTypeRegistry creates a registry with the builtin tags installed.
func NewTypeRegistry() *TypeRegistry {
	r := NewEmptyTypeRegistry()
	mustRegister[string](r, "string")
	mustRegister[bool](r, "bool")
	mustRegister[int](r, "int")
	mustRegister[int32](r, "int32")
	mustRegister[int64](r, "int64")
	mustRegister[uint64](r, "uint64")
	mustRegister[float64](r, "float64")
	mustRegister[[]byte](r, "bytes")
	mustRegister[[]string](r, "[]string")
	mustRegister[[]any](r, "[]any")
	mustRegister[map[string]any](r, "map[string]any")
	mustRegister[map[string]string](r, "map[string]string")
	mustRegister[time.Time](r, "time")
	return r
}

// NewEmptyTypeRegistry creates a registry without builtin tags.
func NewEmptyTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		decoders: make(map[string]Decoder),
		tags:     make(map[reflect.Type]string),
	}
}

// Register installs a JSON decoder for T under tag.
func Register[T any](r *TypeRegistry, tag string) error {
	return r.RegisterDecoder(tag, reflect.TypeFor[T](), JSONDecoder[T]{})
}

func mustRegister[T any](r *TypeRegistry, tag string) {
	if err := Register[T](r, tag); err != nil {
		panic(err)
	}
}

// RegisterDecoder installs a custom decoder for typ under tag.
func (r *TypeRegistry) RegisterDecoder(tag string, typ reflect.Type, dec Decoder) error {
	if tag == "" || len(tag) > maxTagLength {
		return fmt.Errorf("%w: invalid tag %q", ErrEncoding, tag)
	}
	if typ == nil || dec == nil {
		return fmt.Errorf("%w: nil type or decoder for tag %q", ErrEncoding, tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.decoders[tag]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTag, tag)
	}
	if existing, ok := r.tags[typ]; ok {
		return fmt.Errorf("%w: %s is registered as %q", ErrDuplicateTag, typ, existing)
	}
	r.decoders[tag] = dec
	r.tags[typ] = tag
	return nil
}

// TagOf returns the tag registered for v's dynamic type.
func (r *TypeRegistry) TagOf(v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: nil value", ErrEncoding)
	}
	typ := reflect.TypeOf(v)

	r.mu.RLock()
	tag, ok := r.tags[typ]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: unregistered type %s", ErrEncoding, typ)
	}
	return tag, nil
}

// Decoder returns the decoder for tag.
func (r *TypeRegistry) Decoder(tag string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dec, ok := r.decoders[tag]
	return dec, ok
}

// Tags returns the number of registered tags.
func (r *TypeRegistry) Tags() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.decoders)
}
