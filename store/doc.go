// Package store defines the remote key/value store consumed by cache regions.
//
// The store is TTL-only: one hard expiration per entry, no enumeration. It
// provides the Client interface, an in-memory implementation, and an adapter
// for memcached.
package store
