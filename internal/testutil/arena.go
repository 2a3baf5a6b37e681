// Package testutil provides small helpers shared by tests that build a
// synthetic cell arena and wire packed (data, interface) reference pairs
// by hand, rather than through a real class table.
package testutil

import (
	"testing"

	"github.com/chernykhds/phantomuserland/internal/alloc"
	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/stretchr/testify/require"
)

// RefPairSize is the byte size of one packed (data, interface) CellRef
// pair in a non-internal cell's data area.
const RefPairSize = 8

// NewArena allocates a byte slice of size bytes and lays it out as a
// single FREE cell spanning its whole length, the shape every core
// operation requires as a starting point.
func NewArena(t *testing.T, size int) []byte {
	t.Helper()
	arena := make([]byte, size)
	require.NoError(t, alloc.InitArena(arena))
	return arena
}

// SetPair writes the (data, interface) pair at pairIdx within ref's data
// area. Cells come back zero-initialised from allocation, which is NOT
// the same as a populated "no reference" pair — cellfmt.NullRef is the
// out-of-range sentinel 0xFFFFFFFF, not 0, since offset 0 is itself a
// legitimate in-arena reference. Callers that want an empty slot must write NullRef into it
// explicitly via ClearPairs.
func SetPair(t *testing.T, arena []byte, ref cellfmt.CellRef, pairIdx int, dataChild, ifaceChild cellfmt.CellRef) {
	t.Helper()
	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	data, err := cellfmt.Data(arena, ref, h)
	require.NoError(t, err)
	off := pairIdx * RefPairSize
	require.LessOrEqual(t, off+RefPairSize, len(data))
	cellfmt.PutU32(data, off, uint32(dataChild))
	cellfmt.PutU32(data, off+4, uint32(ifaceChild))
}

// ClearPairs writes NullRef into every packed (data, interface) pair slot
// of ref's data area.
func ClearPairs(t *testing.T, arena []byte, ref cellfmt.CellRef) {
	t.Helper()
	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	data, err := cellfmt.Data(arena, ref, h)
	require.NoError(t, err)
	for off := 0; off+RefPairSize <= len(data); off += RefPairSize {
		cellfmt.PutU32(data, off, uint32(cellfmt.NullRef))
		cellfmt.PutU32(data, off+4, uint32(cellfmt.NullRef))
	}
}

// StateOf reads back ref's current allocation state.
func StateOf(t *testing.T, arena []byte, ref cellfmt.CellRef) cellfmt.AllocState {
	t.Helper()
	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	return h.AllocState
}
