package cellfmt

import "fmt"

// ChildVisitor receives one outgoing reference during traversal of a
// cell's children. Declared here, rather than separately in internal/gc and
// internal/refcount, so a single external class-iterator implementation can
// satisfy both packages' otherwise-independent ClassIterator interfaces —
// each re-exports this type under its own name via a type alias.
type ChildVisitor func(ref CellRef) error

// Header is the decoded, in-memory view of a cell's fixed 28-byte header.
type Header struct {
	StartMarker uint32
	AllocState  AllocState
	GCFlags     uint8
	Flags       Flags
	RefCount    uint32
	ExactSize   uint32
	ClassData   CellRef
	ClassIface  CellRef
	DataSize    uint32
}

// Generation returns the cell's generation counter (GCFlags & GenerationMask).
func (h Header) Generation() uint8 {
	return h.GCFlags & GenerationMask
}

// Marked reports whether the collector's MARK bit is set on this cell.
func (h Header) Marked() bool {
	return h.GCFlags&MarkBit != 0
}

// slice returns the sub-slice [off, off+n) of b, or ok=false when the
// range escapes b or the end offset overflows int.
func slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 {
		return nil, false
	}
	end := off + n
	if end < off || end > len(b) {
		return nil, false
	}
	return b[off:end], true
}

// ReadHeader decodes the header at byte offset off within the arena b. It
// validates the start marker and that the declared size does not run past
// the end of the arena.
func ReadHeader(arena []byte, off CellRef) (Header, error) {
	base := int(off)
	hb, ok := slice(arena, base, HeaderSize)
	if !ok {
		return Header{}, fmt.Errorf("cellfmt: header at %d: %w", base, ErrTruncated)
	}

	marker := ReadU32(hb, 0x00)
	if marker != StartMarker {
		return Header{}, fmt.Errorf("cellfmt: header at %d: %w", base, ErrBadMarker)
	}

	h := Header{
		StartMarker: marker,
		AllocState:  AllocState(hb[0x04]),
		GCFlags:     hb[0x05],
		Flags:       Flags(ReadU16(hb, 0x06)),
		RefCount:    ReadU32(hb, 0x08),
		ExactSize:   ReadU32(hb, 0x0C),
		ClassData:   CellRef(ReadU32(hb, 0x10)),
		ClassIface:  CellRef(ReadU32(hb, 0x14)),
		DataSize:    ReadU32(hb, 0x18),
	}

	end := base + int(h.ExactSize)
	if end < base || end > len(arena) {
		return Header{}, fmt.Errorf("cellfmt: header at %d: %w", base, ErrOverrun)
	}
	return h, nil
}

// WriteHeader encodes h into the arena at byte offset off. It does not
// validate ExactSize against the arena bounds; callers that just sized a
// cell via Align8 are expected to know it fits.
func WriteHeader(arena []byte, off CellRef, h Header) error {
	base := int(off)
	hb, ok := slice(arena, base, HeaderSize)
	if !ok {
		return fmt.Errorf("cellfmt: header at %d: %w", base, ErrTruncated)
	}

	PutU32(hb, 0x00, StartMarker)
	hb[0x04] = byte(h.AllocState)
	hb[0x05] = h.GCFlags
	PutU16(hb, 0x06, uint16(h.Flags))
	PutU32(hb, 0x08, h.RefCount)
	PutU32(hb, 0x0C, h.ExactSize)
	PutU32(hb, 0x10, uint32(h.ClassData))
	PutU32(hb, 0x14, uint32(h.ClassIface))
	PutU32(hb, 0x18, h.DataSize)
	return nil
}

// Data returns the payload slice of the cell at off, as described by its
// already-decoded header h.
func Data(arena []byte, off CellRef, h Header) ([]byte, error) {
	start := int(off) + HeaderSize
	d, ok := slice(arena, start, int(h.DataSize))
	if !ok {
		return nil, fmt.Errorf("cellfmt: data at %d: %w", off, ErrTruncated)
	}
	return d, nil
}

// InitAllocated writes a fresh ALLOCATED header of the given total size
// (header included) at off: refcount=1, generation 0, no class/flags set,
// data area zeroed. This is the shape a cell has the instant it is born.
func InitAllocated(arena []byte, off CellRef, size uint32) (Header, error) {
	h := Header{
		AllocState: StateAllocated,
		RefCount:   1,
		ExactSize:  size,
		ClassData:  NullRef,
		ClassIface: NullRef,
		DataSize:   size - HeaderSize,
	}
	if err := WriteHeader(arena, off, h); err != nil {
		return Header{}, err
	}
	data, err := Data(arena, off, h)
	if err != nil {
		return Header{}, err
	}
	for i := range data {
		data[i] = 0
	}
	return h, nil
}

// InitFree writes a fresh FREE header of the given total size at off.
func InitFree(arena []byte, off CellRef, size uint32) (Header, error) {
	h := Header{
		AllocState: StateFree,
		ExactSize:  size,
		ClassData:  NullRef,
		ClassIface: NullRef,
		DataSize:   size - HeaderSize,
	}
	if err := WriteHeader(arena, off, h); err != nil {
		return Header{}, err
	}
	return h, nil
}

// IsObject reports whether the cell at off is ALLOCATED or REFZERO — i.e.
// still a live, addressable object as far as the rest of the heap is
// concerned.
func IsObject(h Header) bool {
	return h.AllocState == StateAllocated || h.AllocState == StateRefZero
}

// IsFreeObject reports whether the cell is on the free list.
func IsFreeObject(h Header) bool {
	return h.AllocState == StateFree
}

// AssertAllocated returns ErrNotAllocated if the cell is not in the
// ALLOCATED state. Several operations (refcount increment, field writes)
// are only valid against a fully-live cell, never one pending deferred free.
func AssertAllocated(h Header) error {
	if h.AllocState != StateAllocated {
		return ErrNotAllocated
	}
	return nil
}

// Next returns the CellRef of the cell immediately following off, or false
// if off's cell reaches the end of the arena.
func Next(arena []byte, off CellRef, h Header) (CellRef, bool) {
	end := int(off) + int(h.ExactSize)
	if end >= len(arena) {
		return NullRef, false
	}
	return CellRef(end), true
}

// WrapNext is like Next but wraps back to offset 0 instead of terminating.
// The allocator's rover search uses this form so a single scan
// can sweep the whole arena regardless of where it starts.
func WrapNext(arena []byte, off CellRef, h Header) CellRef {
	end := int(off) + int(h.ExactSize)
	if end >= len(arena) {
		return 0
	}
	return CellRef(end)
}

// Walk calls fn for every cell in the arena starting at offset 0, in
// ascending order, stopping at the first error returned either by a header
// decode or by fn itself.
func Walk(arena []byte, fn func(off CellRef, h Header) error) error {
	off := CellRef(0)
	for int(off) < len(arena) {
		h, err := ReadHeader(arena, off)
		if err != nil {
			return err
		}
		if err := fn(off, h); err != nil {
			return err
		}
		next, ok := Next(arena, off, h)
		if !ok {
			break
		}
		off = next
	}
	return nil
}
