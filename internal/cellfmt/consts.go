// Package cellfmt defines the on-arena shape of a single heap cell: the
// fixed header every other component relies on, and the low-level walk
// operations (next/wrap) that treat a byte slice as a tiled sequence of
// cells.
//
// Layout (little-endian, 28-byte header, 8-byte aligned cell sizes):
//
//	Offset  Size  Field
//	0x00    4     StartMarker   (constant sentinel)
//	0x04    1     AllocState    (Free/Allocated/RefZero)
//	0x05    1     GCFlags       (low 4 bits: generation 0-15; bit 7: MARK)
//	0x06    2     Flags         (classification bitmask)
//	0x08    4     RefCount      (MaxRefCount == saturated)
//	0x0C    4     ExactSize     (total bytes incl. header)
//	0x10    4     ClassData     (CellRef)
//	0x14    4     ClassIface    (CellRef)
//	0x18    4     DataSize      (bytes of payload)
//	0x1C    ...   Data          (DataSize bytes)
package cellfmt

// CellRef identifies a cell by its byte offset from the start of the arena.
// Using an offset rather than a machine pointer keeps a cell's identity
// stable across snapshot/restore and address-space relocation.
type CellRef uint32

// NullRef is the sentinel "no reference" value.
const NullRef CellRef = 0xFFFFFFFF

const (
	// StartMarker is the constant sentinel every cell header begins with.
	StartMarker uint32 = 0x50564D4F // "PVMO"

	// HeaderSize is the number of bytes in a cell header, before the data area.
	HeaderSize = 28

	// CellAlignment is the required alignment of cell sizes within the arena.
	CellAlignment = 8

	// CellAlignmentMask is the bitmask used to round up to CellAlignment.
	CellAlignmentMask = CellAlignment - 1

	// MinFragmentSize is the minimum size of a fragment the allocator will
	// leave behind as a new FREE cell when splitting. A smaller
	// surplus is always absorbed into the allocation instead.
	MinFragmentSize = 32

	// MinCellSize is the smallest a cell can ever legally be: header plus
	// zero data bytes, aligned.
	MinCellSize = HeaderSize

	// GenerationMask isolates the low 4 bits of GCFlags (0-15).
	GenerationMask uint8 = 0x0F

	// GenerationModulus is the cyclic range of the generation counter.
	GenerationModulus = 16

	// MarkBit is the top bit of GCFlags, set only during collector phase 1.
	MarkBit uint8 = 0x80

	// MaxRefCount is the sentinel refcount value meaning "saturated" /
	// immortal: never decremented, never reclaimed.
	MaxRefCount uint32 = 0xFFFFFFFF
)

// AllocState is the mutually-exclusive state of a cell.
type AllocState uint8

const (
	// StateFree marks a cell available for allocation.
	StateFree AllocState = iota
	// StateAllocated marks a live, in-use cell.
	StateAllocated
	// StateRefZero marks a cell whose refcount has dropped to zero but whose
	// children have not yet been decremented by the deferred-free processor.
	StateRefZero
)

func (s AllocState) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateAllocated:
		return "ALLOCATED"
	case StateRefZero:
		return "REFZERO"
	default:
		return "UNKNOWN"
	}
}

// Flags classify a cell's payload shape, consumed by the traversal logic in
// internal/refcount and internal/gc.
type Flags uint16

const (
	// FlagInternal marks a cell whose data area is NOT a packed sequence of
	// (data, interface) reference pairs — its shape is interpreted by a
	// per-class iterator from the external class table instead.
	FlagInternal Flags = 1 << iota
	// FlagString marks a leaf cell holding encoded text, no outgoing refs.
	FlagString
	// FlagInt marks a leaf cell holding an unboxed integer, no outgoing refs.
	FlagInt
	// FlagCode marks a leaf cell holding bytecode, no outgoing refs.
	FlagCode
	// FlagClass marks a cell that is itself a class object.
	FlagClass
	// FlagInterface marks a cell that is itself an interface object.
	FlagInterface
)

// IsLeaf reports whether a cell of these flags has no outgoing object
// references at all. The original source repeats this check as several
// separate IS_CODE tests scattered through the refzero path;
// this is the single folded predicate.
func (f Flags) IsLeaf() bool {
	return f&(FlagString|FlagInt|FlagCode) != 0
}

func (f Flags) String() string {
	if f == 0 {
		return "-"
	}
	var out string
	add := func(name string) {
		if out != "" {
			out += "|"
		}
		out += name
	}
	if f&FlagInternal != 0 {
		add("INTERNAL")
	}
	if f&FlagString != 0 {
		add("STRING")
	}
	if f&FlagInt != 0 {
		add("INT")
	}
	if f&FlagCode != 0 {
		add("CODE")
	}
	if f&FlagClass != 0 {
		add("CLASS")
	}
	if f&FlagInterface != 0 {
		add("INTERFACE")
	}
	return out
}

// Align8 returns n rounded up to the next 8-byte boundary.
func Align8(n int) int {
	return (n + CellAlignmentMask) &^ CellAlignmentMask
}
