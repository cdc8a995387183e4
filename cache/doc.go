// Package cache holds fetched chunks for the lifetime of a dataset handle.
//
// Every implementation is add-only from the caller's point of view: Put
// stores a chunk only when its index is absent, so concurrent or repeated
// loads of the same chunk are harmless. Map never evicts. LRU bounds memory
// by evicting least-recently-used chunks outside a pinned retention window.
// Disk keeps compressed chunks on the local filesystem and Tiered stacks a
// memory cache in front of it.
package cache
