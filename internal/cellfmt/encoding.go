package cellfmt

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

// Binary encoding utilities for little-endian integers.
//
// Performance note: benchmarking showed the compiler already inlines
// encoding/binary.LittleEndian calls well; a hand-rolled unsafe.Pointer
// version provided no measurable benefit, so this stays on the stdlib.

// PutU16 writes a uint16 at off in little-endian form.
func PutU16(b []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}

// PutU32 writes a uint32 at off in little-endian form.
func PutU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// PutI32 writes an int32 at off in little-endian form.
func PutI32(b []byte, off int, v int32) {
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(v))
}

// PutU64 writes a uint64 at off in little-endian form.
func PutU64(b []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(b[off:off+8], v)
}

// ReadU16 reads a uint16 at off in little-endian form.
func ReadU16(b []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

// ReadU32 reads a uint32 at off in little-endian form.
func ReadU32(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// ReadI32 reads an int32 at off in little-endian form.
func ReadI32(b []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(b[off : off+4]))
}

// ReadU64 reads a uint64 at off in little-endian form.
func ReadU64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off : off+8])
}

// stringCodec/stringDecoder back EncodeString/DecodeString below. UTF-16LE is
// the natural text encoding for a STRING leaf cell's payload in a
// managed-object VM whose class library (an external collaborator to this
// core) is assumed to box native text as UTF-16 code units.
var stringCodec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
var stringDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// EncodeString converts s to the UTF-16LE bytes stored in a STRING leaf
// cell's data area.
func EncodeString(s string) ([]byte, error) {
	return stringCodec.Bytes([]byte(s))
}

// DecodeString converts the UTF-16LE data area of a STRING leaf cell back to
// a Go string.
func DecodeString(data []byte) (string, error) {
	out, err := stringDecoder.Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
