// Package keyindex tracks the store keys believed live for a cache region.
//
// The remote store cannot enumerate its keys, so each region keeps an Index
// of the keys it wrote. The index is a hint: it may hold keys whose entries
// already expired and miss keys written by other processes. Snapshots carry
// the key set across restarts through a SnapshotStore.
package keyindex
