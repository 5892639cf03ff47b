package store

import (
	"context"
	"errors"
	"time"
	"unicode"
)

// MaxKeyLength is the maximum key length accepted by memcached.
const MaxKeyLength = 250

// Sentinel errors for store operations.
var (
	// ErrStore marks every transport or server failure. Callers decide
	// whether to retry; a miss is never reported as ErrStore.
	ErrStore      = errors.New("store: operation failed")
	ErrInvalidKey = errors.New("store: key is invalid")
	ErrKeyTooLong = errors.New("store: key exceeds max length")
)

// Client is the remote store used by cache regions.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where the transport allows.
// - Errors: failures wrap ErrStore; a missing key is (nil, false, nil).
type Client interface {
	// Get retrieves a value. Returns (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. TTL=0 means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	// Flush removes every entry in the store.
	Flush(ctx context.Context) error
}

// ValidateKey checks if a key is acceptable to the store.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for _, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrInvalidKey
		}
	}
	return nil
}
