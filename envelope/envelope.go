package envelope

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	maxTagLength = math.MaxUint16
	maxKeyLength = math.MaxUint32
)

// Entry is one stored value with its expiration metadata.
//
// When HasMetadata is false the payload was written without metadata and only
// TypeTag and Value are set. When IdleTimeSeconds > 0, StoredAt and
// LastAccessedAt are set and StoredAt is not after LastAccessedAt.
type Entry struct {
	HasMetadata     bool
	TypeTag         string
	Key             any
	IdleTimeSeconds int64
	LifeTimeSeconds int64
	StoredAt        time.Time
	LastAccessedAt  time.Time
	Value           any
}

// Codec encodes entries to and from store payloads.
//
// Wire layout, big-endian, no padding:
//
//	hasMetadata u8
//	tagLen u16, tag
//	if hasMetadata:
//	    keyLen u32, key (bare payload of the logical key)
//	    idleTimeSeconds i64, lifeTimeSeconds i64
//	    if idleTimeSeconds > 0: storedAtMillis i64, lastAccessedAtMillis i64
//	JSON of the value
type Codec struct {
	types *TypeRegistry
}

// NewCodec creates a codec resolving tags through types.
// If types is nil, a registry with the builtin tags is used.
func NewCodec(types *TypeRegistry) *Codec {
	if types == nil {
		types = NewTypeRegistry()
	}
	return &Codec{types: types}
}

// Types returns the codec's type registry.
func (c *Codec) Types() *TypeRegistry {
	return c.types
}

// Encode writes e with metadata. TypeTag is derived from Value; a non-empty
// TypeTag that disagrees with Value's registered tag is an encoding error.
func (c *Codec) Encode(e *Entry) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entry", ErrEncoding)
	}
	tag, err := c.tagFor(e.TypeTag, e.Value)
	if err != nil {
		return nil, err
	}
	if e.IdleTimeSeconds < 0 || e.LifeTimeSeconds < 0 {
		return nil, fmt.Errorf("%w: negative expiration (idle=%d, life=%d)", ErrEncoding, e.IdleTimeSeconds, e.LifeTimeSeconds)
	}
	if e.IdleTimeSeconds > 0 {
		if e.StoredAt.IsZero() || e.LastAccessedAt.IsZero() {
			return nil, fmt.Errorf("%w: idle entry without timestamps", ErrEncoding)
		}
		if e.StoredAt.After(e.LastAccessedAt) {
			return nil, fmt.Errorf("%w: stored after last access", ErrEncoding)
		}
	}

	key, err := c.EncodeValue(e.Key)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	if uint64(len(key)) > maxKeyLength {
		return nil, fmt.Errorf("%w: key too large", ErrEncoding)
	}
	payload, err := marshal(e.Value)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 1+2+len(tag)+4+len(key)+32+len(payload))
	buf = append(buf, 1)
	buf = appendTag(buf, tag)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.IdleTimeSeconds))
	buf = binary.BigEndian.AppendUint64(buf, uint64(e.LifeTimeSeconds))
	if e.IdleTimeSeconds > 0 {
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.StoredAt.UnixMilli()))
		buf = binary.BigEndian.AppendUint64(buf, uint64(e.LastAccessedAt.UnixMilli()))
	}
	return append(buf, payload...), nil
}

// EncodeValue writes v without metadata.
func (c *Codec) EncodeValue(v any) ([]byte, error) {
	tag, err := c.types.TagOf(v)
	if err != nil {
		return nil, err
	}
	payload, err := marshal(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 1+2+len(tag)+len(payload))
	buf = append(buf, 0)
	buf = appendTag(buf, tag)
	return append(buf, payload...), nil
}

// Decode reads a payload written by Encode or EncodeValue.
func (c *Codec) Decode(data []byte) (*Entry, error) {
	r := reader{data: data}

	flag, err := r.byte()
	if err != nil {
		return nil, err
	}
	if flag > 1 {
		return nil, fmt.Errorf("%w: invalid metadata flag %d", ErrDecoding, flag)
	}
	tagLen, err := r.uint16()
	if err != nil {
		return nil, err
	}
	tag, err := r.bytes(int(tagLen))
	if err != nil {
		return nil, err
	}

	e := &Entry{HasMetadata: flag == 1, TypeTag: string(tag)}
	if e.HasMetadata {
		if err := c.readMetadata(&r, e); err != nil {
			return nil, err
		}
	}

	dec, ok := c.types.Decoder(e.TypeTag)
	if !ok {
		return nil, fmt.Errorf("%w: unknown type tag %q", ErrDecoding, e.TypeTag)
	}
	value, err := dec.Decode(r.rest())
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", ErrDecoding, e.TypeTag, err)
	}
	e.Value = value
	return e, nil
}

// DecodeValue reads a payload and returns only its value.
func (c *Codec) DecodeValue(data []byte) (any, error) {
	e, err := c.Decode(data)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (c *Codec) readMetadata(r *reader, e *Entry) error {
	keyLen, err := r.uint32()
	if err != nil {
		return err
	}
	keyData, err := r.bytes(int(keyLen))
	if err != nil {
		return err
	}
	key, err := c.Decode(keyData)
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	if key.HasMetadata {
		return fmt.Errorf("%w: key carries metadata", ErrDecoding)
	}
	e.Key = key.Value

	if e.IdleTimeSeconds, err = r.int64(); err != nil {
		return err
	}
	if e.LifeTimeSeconds, err = r.int64(); err != nil {
		return err
	}
	if e.IdleTimeSeconds < 0 || e.LifeTimeSeconds < 0 {
		return fmt.Errorf("%w: negative expiration", ErrDecoding)
	}
	if e.IdleTimeSeconds > 0 {
		storedAt, err := r.int64()
		if err != nil {
			return err
		}
		lastAccessedAt, err := r.int64()
		if err != nil {
			return err
		}
		e.StoredAt = time.UnixMilli(storedAt)
		e.LastAccessedAt = time.UnixMilli(lastAccessedAt)
	}
	return nil
}

func (c *Codec) tagFor(declared string, v any) (string, error) {
	tag, err := c.types.TagOf(v)
	if err != nil {
		return "", err
	}
	if declared != "" && declared != tag {
		return "", fmt.Errorf("%w: type tag %q does not match value tag %q", ErrEncoding, declared, tag)
	}
	return tag, nil
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return data, nil
}

func appendTag(buf []byte, tag string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(tag)))
	return append(buf, tag...)
}

// reader is a bounds-checked cursor over a payload.
type reader struct {
	data []byte
	off  int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, fmt.Errorf("%w: truncated payload", ErrDecoding)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) int64() (int64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *reader) rest() []byte {
	return r.data[r.off:]
}
