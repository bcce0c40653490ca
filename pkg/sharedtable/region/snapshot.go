package region

import (
	"bytes"

	"github.com/calvinalkan/sharedtable/pkg/fs"
)

// Snapshot durably writes a point-in-time copy of the region's current
// bytes to path, using [fs.AtomicWriter]'s temp-file-write-fsync-rename-
// fsync-dir sequence so a reader of path never observes a partially-written
// snapshot, and a crash mid-write leaves the previous contents of path (if
// any) intact.
//
// Snapshot does not itself coordinate with concurrent table mutation; the
// caller should hold the table's write lock (e.g. via [Table.LockWrite])
// or a [WriteLock] while snapshotting if it needs a fully consistent copy.
func (r *Region) Snapshot(path string) error {
	fsys := r.fsys
	if fsys == nil {
		fsys = fs.NewReal()
	}

	return fs.NewAtomicWriter(fsys).WriteWithDefaults(path, bytes.NewReader(r.data))
}
