//go:build !unix && !windows

package mmfile

import (
	"io"
	"os"
)

// mapFile reads the whole file into memory when a real mmap is
// unavailable on this platform. unmap writes the (possibly mutated) slice
// back to the file so the effect still looks like a writable mapping.
func mapFile(f *os.File, size int64) ([]byte, func([]byte) error, error) {
	data := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(f, data); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, nil, err
		}
	}
	unmap := func(d []byte) error {
		_, err := f.WriteAt(d, 0)
		return err
	}
	return data, unmap, nil
}
