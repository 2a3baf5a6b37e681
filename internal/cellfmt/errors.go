package cellfmt

import "errors"

var (
	// ErrTruncated indicates the buffer lacked the bytes required for a
	// header or declared cell size.
	ErrTruncated = errors.New("cellfmt: truncated buffer")

	// ErrBadMarker indicates a cell header's start_marker did not match
	// StartMarker.
	ErrBadMarker = errors.New("cellfmt: bad start marker")

	// ErrOverrun indicates a cell's declared size would walk past the end
	// of the arena.
	ErrOverrun = errors.New("cellfmt: cell overruns arena")

	// ErrBadRef indicates a CellRef does not address a valid header.
	ErrBadRef = errors.New("cellfmt: invalid cell reference")

	// ErrNotFree indicates an operation required a FREE cell and found one
	// in a different state.
	ErrNotFree = errors.New("cellfmt: expected free cell")

	// ErrNotAllocated indicates an operation required an ALLOCATED cell and
	// found one in a different state.
	ErrNotAllocated = errors.New("cellfmt: expected allocated cell")
)
