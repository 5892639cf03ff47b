package cache

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// MaxRegionNameLength bounds region names so that the name plus a hashed key
// stays within the store's key limit.
const MaxRegionNameLength = 128

// regionSeparator joins the region name and the encoded key into a store key.
const regionSeparator = ":"

// Sentinel errors for region operations.
//
// ErrConfiguration is the parent of every error that rejects a call before
// any store round trip. Store failures wrap store.ErrStore; encoding and
// decoding failures wrap envelope.ErrEncoding and envelope.ErrDecoding.
var (
	ErrConfiguration = errors.New("cache: invalid configuration")

	ErrInvalidExpiration = fmt.Errorf("%w: invalid expiration", ErrConfiguration)
	ErrInvalidRegionName = fmt.Errorf("%w: invalid region name", ErrConfiguration)
	ErrInvalidKey        = fmt.Errorf("%w: invalid key", ErrConfiguration)
	ErrNilKey            = fmt.Errorf("%w: key is nil", ErrConfiguration)
	ErrNilValue          = fmt.Errorf("%w: value is nil", ErrConfiguration)

	ErrTypeMismatch = errors.New("cache: stored value has unexpected type")
	ErrNilRegistry  = errors.New("cache: registry is nil")
)

// Entry is one live key/value pair of a region.
type Entry struct {
	Key   any
	Value any
}

// ValidateRegionName checks that name can prefix store keys.
func ValidateRegionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRegionName)
	}
	if len(name) > MaxRegionNameLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidRegionName, MaxRegionNameLength)
	}
	if strings.Contains(name, regionSeparator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidRegionName, name, regionSeparator)
	}
	for _, c := range name {
		if unicode.IsSpace(c) || unicode.IsControl(c) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidRegionName, name)
		}
	}
	return nil
}
