//go:build windows

package mmfile

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mapFile maps f read-write for exactly size bytes using CreateFileMapping
// / MapViewOfFile.
func mapFile(f *os.File, size int64) ([]byte, func([]byte) error, error) {
	if size == 0 {
		return []byte{}, func([]byte) error { return nil }, nil
	}

	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READWRITE, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, nil, err
	}
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		return nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	unmap := func([]byte) error {
		return windows.UnmapViewOfFile(addr)
	}
	return data, unmap, nil
}
