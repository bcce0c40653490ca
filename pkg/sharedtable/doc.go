// Package sharedtable implements a fixed-capacity, coalesced-chaining hash
// map over a single flat byte buffer, intended for concurrent access by
// multiple readers and writers sharing that buffer.
//
// The table stores only string keys and string values, inline, in a
// statically-sized region computed once from (capacity, key width, value
// width). Collisions are resolved by coalesced chaining: every entry lives
// in the slot array itself (there is no separate overflow/cellar area), and
// a chain is a sequence of slots linked by next-pointers all sharing a
// common home slot.
//
// Concurrency is provided by two cooperating lock tiers: a per-slot line
// lock (shared/exclusive) and a table-wide gate (also shared/exclusive,
// with roles inverted relative to a conventional RWMutex — see [Table]).
// Both are plain atomic words living inside the buffer itself, so they work
// whether the buffer is shared between goroutines or mapped into multiple
// OS processes via [github.com/calvinalkan/sharedtable/pkg/sharedtable/region].
package sharedtable
