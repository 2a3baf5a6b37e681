package gc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
)

type fakeSupervisor struct {
	stopped, resumed int
}

func (f *fakeSupervisor) StopMutators()   { f.stopped++ }
func (f *fakeSupervisor) ResumeMutators() { f.resumed++ }

type fakeRoots []cellfmt.CellRef

func (f fakeRoots) Roots() []cellfmt.CellRef { return f }

func setPair(t *testing.T, arena []byte, ref cellfmt.CellRef, pairIdx int, dataChild, ifaceChild cellfmt.CellRef) {
	t.Helper()
	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	data, err := cellfmt.Data(arena, ref, h)
	require.NoError(t, err)
	off := pairIdx * refPairSize
	require.LessOrEqual(t, off+refPairSize, len(data))
	cellfmt.PutU32(data, off, uint32(dataChild))
	cellfmt.PutU32(data, off+4, uint32(ifaceChild))
}

// clearPairs writes NullRef into every packed (data, interface) pair slot
// of ref's data area. A zero-initialised data area is NOT the same as a
// populated "no reference" slot (cellfmt.NullRef is the out-of-range
// sentinel 0xFFFFFFFF, not 0, since offset 0 is itself a valid in-arena
// reference) — tests must set this up explicitly rather than relying on
// InitAllocated's zeroed bytes.
func clearPairs(t *testing.T, arena []byte, ref cellfmt.CellRef) {
	t.Helper()
	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	data, err := cellfmt.Data(arena, ref, h)
	require.NoError(t, err)
	for off := 0; off+refPairSize <= len(data); off += refPairSize {
		cellfmt.PutU32(data, off, uint32(cellfmt.NullRef))
		cellfmt.PutU32(data, off+4, uint32(cellfmt.NullRef))
	}
}

func newCollector(roots fakeRoots) (*Collector, *fakeSupervisor) {
	sup := &fakeSupervisor{}
	c := New(nil, roots, sup, &sync.Mutex{}, 0, nil)
	return c, sup
}

func TestCollectFreesUnreachableCells(t *testing.T) {
	arena := make([]byte, 256)
	_, err := cellfmt.InitAllocated(arena, 0, 64)
	require.NoError(t, err)
	_, err = cellfmt.InitAllocated(arena, 64, 64)
	require.NoError(t, err)
	_, err = cellfmt.InitFree(arena, 128, 128)
	require.NoError(t, err)

	c, sup := newCollector(nil)
	require.NoError(t, c.Collect(arena))

	assert.Equal(t, 1, sup.stopped)
	assert.Equal(t, 1, sup.resumed)

	h0, err := cellfmt.ReadHeader(arena, 0)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateFree, h0.AllocState)

	h1, err := cellfmt.ReadHeader(arena, 64)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateFree, h1.AllocState)
}

func TestCollectPreservesReachableChain(t *testing.T) {
	arena := make([]byte, 256)
	_, err := cellfmt.InitAllocated(arena, 0, 64)
	require.NoError(t, err)
	_, err = cellfmt.InitAllocated(arena, 64, 64)
	require.NoError(t, err)
	_, err = cellfmt.InitFree(arena, 128, 128)
	require.NoError(t, err)

	clearPairs(t, arena, 0)
	clearPairs(t, arena, 64)
	setPair(t, arena, 0, 0, 64, cellfmt.NullRef)

	c, _ := newCollector(fakeRoots{0})
	require.NoError(t, c.Collect(arena))

	h0, err := cellfmt.ReadHeader(arena, 0)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateAllocated, h0.AllocState)
	assert.False(t, h0.Marked())

	h1, err := cellfmt.ReadHeader(arena, 64)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateAllocated, h1.AllocState)
	assert.False(t, h1.Marked())
}

// setClass writes ref's class.data/class.interface header fields directly,
// the way a VM object model would stamp an object's class at construction
// time.
func setClass(t *testing.T, arena []byte, ref cellfmt.CellRef, classData, classIface cellfmt.CellRef) {
	t.Helper()
	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	h.ClassData = classData
	h.ClassIface = classIface
	require.NoError(t, cellfmt.WriteHeader(arena, ref, h))
}

// TestCollectPreservesClassOnlyReachability: a cell reachable only by
// being named as a live object's class (never itself a root, never
// referenced through a data-area pair) must survive a collection.
func TestCollectPreservesClassOnlyReachability(t *testing.T) {
	arena := make([]byte, 256)
	_, err := cellfmt.InitAllocated(arena, 0, 64) // the root object
	require.NoError(t, err)
	_, err = cellfmt.InitAllocated(arena, 64, 64) // reachable only via cell 0's class.data
	require.NoError(t, err)
	_, err = cellfmt.InitFree(arena, 128, 128)
	require.NoError(t, err)

	clearPairs(t, arena, 0)
	clearPairs(t, arena, 64)
	setClass(t, arena, 0, 64, cellfmt.NullRef)

	c, _ := newCollector(fakeRoots{0})
	require.NoError(t, c.Collect(arena))

	h1, err := cellfmt.ReadHeader(arena, 64)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateAllocated, h1.AllocState, "cell reachable only via class.data must survive")
	assert.False(t, h1.Marked())
}

func TestCollectReclaimsReferenceCycleInOneCollection(t *testing.T) {
	arena := make([]byte, 256)
	_, err := cellfmt.InitAllocated(arena, 0, 64)
	require.NoError(t, err)
	_, err = cellfmt.InitAllocated(arena, 64, 64)
	require.NoError(t, err)
	_, err = cellfmt.InitFree(arena, 128, 128)
	require.NoError(t, err)

	// cellA -> cellB -> cellA, no external root.
	clearPairs(t, arena, 0)
	clearPairs(t, arena, 64)
	setPair(t, arena, 0, 0, 64, cellfmt.NullRef)
	setPair(t, arena, 64, 0, 0, cellfmt.NullRef)

	c, _ := newCollector(nil)
	require.NoError(t, c.Collect(arena))

	h0, err := cellfmt.ReadHeader(arena, 0)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateFree, h0.AllocState)

	h1, err := cellfmt.ReadHeader(arena, 64)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateFree, h1.AllocState)
}

func TestCollectViaConservativeScanKeepsCellAlive(t *testing.T) {
	arena := make([]byte, 256)
	_, err := cellfmt.InitAllocated(arena, 0, 64)
	require.NoError(t, err)
	_, err = cellfmt.InitFree(arena, 64, 192)
	require.NoError(t, err)

	c, _ := newCollector(nil) // no static/dynamic roots at all
	region := make([]byte, 8)
	cellfmt.PutU32(region, 0, 0) // candidate pointing at cell 0
	c.SetScanRegion(region)

	require.NoError(t, c.Collect(arena))

	h0, err := cellfmt.ReadHeader(arena, 0)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateAllocated, h0.AllocState, "conservative scan should have rooted cell 0")
}

func TestIsStaleLagOneOrTwo(t *testing.T) {
	assert.False(t, isStale(5, 5))
	assert.True(t, isStale(4, 5))
	assert.True(t, isStale(3, 5))
	assert.False(t, isStale(2, 5))
	assert.True(t, isStale(15, 1)) // wraps mod 16: lag = (1-15+16)%16 = 2
	assert.False(t, isStale(14, 1))
}

func TestSweepPanicsOnStillMarkedCell(t *testing.T) {
	arena := make([]byte, 128)
	h, err := cellfmt.InitAllocated(arena, 0, 128)
	require.NoError(t, err)
	h.GCFlags |= cellfmt.MarkBit
	require.NoError(t, cellfmt.WriteHeader(arena, 0, h))

	c, _ := newCollector(nil)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_ = c.sweep(arena, 1)
	}()

	require.NotNil(t, recovered)
	appErr, ok := recovered.(*apperr.AppError)
	require.True(t, ok, "expected *apperr.AppError, got %T", recovered)
	assert.True(t, apperr.IsCorruptHeap(appErr))
}
