package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/kvregion/store"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned without calling the store while the breaker
	// is open. It wraps store.ErrStore so callers treat it as a store failure.
	ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", store.ErrStore)

	// ErrMaxRetriesExceeded wraps the last error once every attempt failed.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")
)

// IsStoreFailure reports whether err is a transport failure worth retrying
// or counting against the breaker. Rejections by an open breaker and
// caller cancellations are not.
func IsStoreFailure(err error) bool {
	switch {
	case !errors.Is(err, store.ErrStore):
		return false
	case errors.Is(err, ErrCircuitOpen):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
