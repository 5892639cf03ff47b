package store

import (
	"errors"
	"fmt"
)

var errNegativeTTL = errors.New("negative ttl")

// wrapErr marks err as a store failure for op on key.
func wrapErr(op, key string, err error) error {
	if key == "" {
		return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
	}
	return fmt.Errorf("%w: %s %q: %w", ErrStore, op, key, err)
}
