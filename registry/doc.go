// Package registry implements the per-side handle table of the bridge.
//
// Each side of the bridge owns a table mapping small integer handles to
// locally-owned values. Freed slots are threaded into a free list
// embedded in the table itself: a freed slot stores the index of the
// next free slot, so allocation and release are O(1) with no compaction.
// Reuse is LIFO: the most recently freed handle is handed out first.
//
// A handle is valid iff its slot is not on the free list. Get and Free
// validate this, so a misbehaving peer gets an invalid-handle failure
// instead of reading another value's slot. Handle values are reused
// after release with no generation tagging; a peer that references a
// handle after sending its forget notice cannot be distinguished from
// legitimate reuse. This is a deliberate trust boundary: the peer is a
// co-located, cooperating process.
//
// Values are a closed tagged variant (integer, bytes, text, tuple,
// remote proxy, opaque object), so dispatch type checks are exhaustive
// switches rather than runtime probing.
//
// The table is not safe for concurrent use; the bridge touches it from
// the single loop goroutine only.
package registry
