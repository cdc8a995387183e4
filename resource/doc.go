// Package resource provides the Controller that governs memory, background
// writes and remote read throughput.
//
//   - Memory: chunk caches reserve bytes before admitting a chunk (non-blocking).
//   - Background writes: disk cache spills hold a slot while writing.
//   - IO: range reads are paced by a token bucket so a fast scroll does not
//     saturate the link to the remote store.
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
