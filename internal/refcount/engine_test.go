package refcount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chernykhds/phantomuserland/internal/alloc"
	"github.com/chernykhds/phantomuserland/internal/cellfmt"
)

// newTestArena builds an arena with the allocator so cells come out
// correctly aligned and headed, then hands back both the arena and the
// allocator for further allocations in a test.
func newTestArena(t *testing.T, size int, e *Engine) ([]byte, *alloc.Allocator) {
	t.Helper()
	arena := make([]byte, size)
	require.NoError(t, alloc.InitArena(arena))
	a := alloc.New(arena, e, noopCollector{}, nil)
	return arena, a
}

type noopCollector struct{}

func (noopCollector) Collect(arena []byte) error { return nil }

func setLeaf(t *testing.T, arena []byte, ref cellfmt.CellRef, flag cellfmt.Flags) {
	t.Helper()
	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	h.Flags = flag
	require.NoError(t, cellfmt.WriteHeader(arena, ref, h))
}

func setPair(t *testing.T, arena []byte, ref cellfmt.CellRef, idx int, dataRef, ifaceRef cellfmt.CellRef) {
	t.Helper()
	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	data, err := cellfmt.Data(arena, ref, h)
	require.NoError(t, err)
	off := idx * refPairSize
	cellfmt.PutU32(data, off, uint32(dataRef))
	cellfmt.PutU32(data, off+4, uint32(ifaceRef))
}

func TestIncThenDecReturnsToOne(t *testing.T) {
	e := New(nil, nil)
	arena, a := newTestArena(t, 256, e)
	ref, err := a.Allocate(16)
	require.NoError(t, err)
	setLeaf(t, arena, ref, cellfmt.FlagInt)

	e.Inc(arena, ref)
	h, _ := cellfmt.ReadHeader(arena, ref)
	assert.Equal(t, uint32(2), h.RefCount)

	require.NoError(t, e.Dec(arena, ref))
	h, _ = cellfmt.ReadHeader(arena, ref)
	assert.Equal(t, cellfmt.StateAllocated, h.AllocState)
	assert.Equal(t, uint32(1), h.RefCount)
}

func TestDecOnLeafGoesStraightToFree(t *testing.T) {
	e := New(nil, nil)
	arena, a := newTestArena(t, 256, e)
	ref, err := a.Allocate(16)
	require.NoError(t, err)
	setLeaf(t, arena, ref, cellfmt.FlagString)

	require.NoError(t, e.Dec(arena, ref))
	h, _ := cellfmt.ReadHeader(arena, ref)
	assert.Equal(t, cellfmt.StateFree, h.AllocState)
}

func TestDecOnNonLeafEntersRefZeroThenProcessed(t *testing.T) {
	e := New(nil, nil)
	arena, a := newTestArena(t, 256, e)
	ref, err := a.Allocate(16) // non-leaf, zero flags
	require.NoError(t, err)
	// A zero-initialised data area is NOT the same as a populated "no
	// reference" slot: offset 0 is a valid in-arena CellRef, so an
	// uninitialised pair must be explicitly set to NullRef before the
	// refcount engine treats it as empty.
	setPair(t, arena, ref, 0, cellfmt.NullRef, cellfmt.NullRef)

	require.NoError(t, e.Dec(arena, ref))
	h, _ := cellfmt.ReadHeader(arena, ref)
	assert.Equal(t, cellfmt.StateFree, h.AllocState, "a cell with no live references has no children to wait on and is freed immediately")
}

func TestSaturateIgnoresFurtherDecrements(t *testing.T) {
	e := New(nil, nil)
	arena, a := newTestArena(t, 256, e)
	ref, err := a.Allocate(16)
	require.NoError(t, err)

	e.Saturate(arena, ref)
	require.NoError(t, e.Dec(arena, ref))
	require.NoError(t, e.Dec(arena, ref))

	h, _ := cellfmt.ReadHeader(arena, ref)
	assert.Equal(t, cellfmt.MaxRefCount, h.RefCount)
	assert.Equal(t, cellfmt.StateAllocated, h.AllocState)
}

func TestDecUnderflowPanics(t *testing.T) {
	e := New(nil, nil)
	arena, a := newTestArena(t, 256, e)
	ref, err := a.Allocate(16)
	require.NoError(t, err)
	setLeaf(t, arena, ref, cellfmt.FlagInt)

	require.NoError(t, e.Dec(arena, ref)) // refcount 1 -> 0, freed (leaf)

	h, _ := cellfmt.ReadHeader(arena, ref)
	_ = h
	assert.Panics(t, func() {
		// Force the cell back to ALLOCATED with refcount 0 to simulate the
		// invariant violation directly, since a legitimately-freed cell
		// can't be Dec'd again through the normal API.
		bad, _ := cellfmt.ReadHeader(arena, ref)
		bad.AllocState = cellfmt.StateAllocated
		bad.RefCount = 0
		require.NoError(t, cellfmt.WriteHeader(arena, ref, bad))
		_ = e.Dec(arena, ref)
	})
}

func TestDecChildrenSkipsInterfaceFieldButDecsDataField(t *testing.T) {
	e := New(nil, nil)
	arena, a := newTestArena(t, 512, e)

	parent, err := a.Allocate(16) // room for one (data, interface) pair
	require.NoError(t, err)
	child, err := a.Allocate(16)
	require.NoError(t, err)
	ifaceChild, err := a.Allocate(16)
	require.NoError(t, err)

	setLeaf(t, arena, child, cellfmt.FlagInt)
	setLeaf(t, arena, ifaceChild, cellfmt.FlagInt)
	setPair(t, arena, parent, 0, child, ifaceChild)

	// Both children start at refcount 1 from allocation; bump child to 2 so
	// we can observe the parent's single decrement land on it.
	e.Inc(arena, child)
	e.Inc(arena, ifaceChild)

	require.NoError(t, e.Dec(arena, parent))

	hChild, _ := cellfmt.ReadHeader(arena, child)
	assert.Equal(t, uint32(1), hChild.RefCount, "the .data field must be decremented")

	hIface, _ := cellfmt.ReadHeader(arena, ifaceChild)
	assert.Equal(t, uint32(2), hIface.RefCount, "the .interface field must NOT be decremented")
}

func TestDecCascadesThroughZeroChild(t *testing.T) {
	e := New(nil, nil)
	arena, a := newTestArena(t, 512, e)

	parent, err := a.Allocate(16)
	require.NoError(t, err)
	child, err := a.Allocate(16)
	require.NoError(t, err)
	setLeaf(t, arena, child, cellfmt.FlagInt)
	setPair(t, arena, parent, 0, child, cellfmt.NullRef)

	require.NoError(t, e.Dec(arena, parent))

	hChild, _ := cellfmt.ReadHeader(arena, child)
	assert.Equal(t, cellfmt.StateFree, hChild.AllocState, "the child's own refcount must reach zero and free it too")
}
