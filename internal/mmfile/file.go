package mmfile

import "os"

// File is a memory-mapped heap arena backing file, opened read-write.
type File struct {
	f     *os.File
	data  []byte
	unmap func([]byte) error
}

// Bytes returns the mapped arena bytes. Mutating this slice mutates the
// backing file; internal/dirty.Tracker decides when those mutations are
// actually flushed to disk. File satisfies internal/dirty.ArenaFile.
func (mf *File) Bytes() []byte {
	return mf.data
}

// FD returns the underlying file descriptor, used for fdatasync.
func (mf *File) FD() int {
	return int(mf.f.Fd())
}

// Close unmaps the arena and closes the backing file. Callers should
// flush any pending dirty ranges first; Close does not do so implicitly.
func (mf *File) Close() error {
	var unmapErr error
	if mf.data != nil {
		unmapErr = mf.unmap(mf.data)
		mf.data = nil
	}
	closeErr := mf.f.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}

// OpenWritable opens path (creating it if it does not exist), sizes it to
// exactly size bytes, and maps it read-write. A freshly created file reads back as all zero bytes,
// which the caller is expected to initialise via internal/alloc.InitArena.
func OpenWritable(path string, size int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, err
	}

	data, unmap, err := mapFile(f, size)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &File{f: f, data: data, unmap: unmap}, nil
}
