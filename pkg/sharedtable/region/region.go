package region

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/calvinalkan/sharedtable/pkg/fs"
)

// Region is a shared memory region backed by a real file, mapped with
// MAP_SHARED so every process that attaches to the same path observes the
// same bytes.
//
// File opening and creation go through [fs.FS] (and stat through the
// returned [fs.File]) so the region package can be driven by an injected
// filesystem; truncation and the mapping itself use the raw OS file
// descriptor ([fs.File.Fd]), since [fs.File] exposes neither ftruncate nor
// mmap.
type Region struct {
	fsys fs.FS
	file fs.File
	path string
	data []byte
}

// Create creates (or truncates) the file at path, sizes it to size bytes,
// and maps it MAP_SHARED|PROT_READ|PROT_WRITE. The mapped bytes start
// zeroed; the usual sequence is to build a table with
// [github.com/calvinalkan/sharedtable/pkg/sharedtable.New], copy its
// Buffer() into [Region.Bytes], and then construct the shared view with
// [github.com/calvinalkan/sharedtable/pkg/sharedtable.Attach].
func Create(path string, size int) (*Region, error) {
	return CreateFS(fs.NewReal(), path, size)
}

// CreateFS is [Create] with an injectable [fs.FS], mainly for tests.
func CreateFS(fsys fs.FS, path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("region: size must be > 0, got %d", size)
	}

	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("region: create %s: %w", path, err)
	}

	if err := truncate(f, size); err != nil {
		f.Close()

		return nil, fmt.Errorf("region: truncate %s: %w", path, err)
	}

	return mapFile(fsys, f, path, size)
}

// Attach opens an existing region file at path and maps its full current
// size MAP_SHARED. The caller reads the table header out of the returned
// bytes to learn (N, K, V), per spec.md §6's peer-attach contract.
func Attach(path string) (*Region, error) {
	return AttachFS(fs.NewReal(), path)
}

// AttachFS is [Attach] with an injectable [fs.FS], mainly for tests.
func AttachFS(fsys fs.FS, path string) (*Region, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("region: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("region: stat %s: %w", path, err)
	}

	return mapFile(fsys, f, path, int(info.Size()))
}

// truncate resizes f, working around [fs.File] not exposing os.File.Truncate
// directly by going through the raw descriptor.
func truncate(f fs.File, size int) error {
	return unix.Ftruncate(int(f.Fd()), int64(size))
}

func mapFile(fsys fs.FS, f fs.File, path string, size int) (*Region, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("region: mmap: %w", err)
	}

	return &Region{fsys: fsys, file: f, path: path, data: data}, nil
}

// Bytes returns the mapped buffer. It remains valid until [Region.Close].
func (r *Region) Bytes() []byte { return r.data }

// Sync flushes the mapped pages to the backing file (MS_SYNC).
func (r *Region) Sync() error {
	return unix.Msync(r.data, unix.MS_SYNC)
}

// Close unmaps the region and closes its backing file descriptor.
func (r *Region) Close() error {
	var mErr, cErr error

	if r.data != nil {
		mErr = unix.Munmap(r.data)
		r.data = nil
	}

	if r.file != nil {
		cErr = r.file.Close()
		r.file = nil
	}

	if mErr != nil {
		return mErr
	}

	return cErr
}

// Path returns the backing file's path.
func (r *Region) Path() string { return r.path }
