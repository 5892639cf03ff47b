// Package cache provides named cache regions with dual expiration over a
// TTL-only key/value store.
//
// A Region stores every value in an envelope carrying its type tag, its
// logical key and its expiration metadata, so that an idle timeout can be
// enforced on top of the store's single hard TTL, and tracks its keys in a
// sidecar index so that it can be iterated. A Registry memoizes one Region
// per name over a shared store client. Service is a flat facade for callers
// that need neither regions nor idle expiry.
package cache
