// Package region provides the file-backed transport spec.md's SharedTable
// deliberately leaves as an external collaborator: how the shared byte
// buffer reaches a peer process.
//
// [Create] and [Attach] mmap a real file with MAP_SHARED so that any number
// of OS processes can obtain a []byte view of the exact same physical
// pages a [github.com/calvinalkan/sharedtable/pkg/sharedtable.Table] reads
// and writes through — the table's own per-slot line locks and global gate
// are plain atomic operations on that memory, so they work identically
// whether the buffer is shared between goroutines or between processes.
package region
