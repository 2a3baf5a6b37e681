package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
)

// noopRefZero should never be invoked in tests that never create a REFZERO
// cell; it panics if it is.
type noopRefZero struct{}

func (noopRefZero) ProcessRefZero(arena []byte, ref cellfmt.CellRef) error {
	panic("unexpected REFZERO during test")
}

// countingCollector tracks how many times Collect ran and can optionally
// free cells to simulate a successful collection.
type countingCollector struct {
	runs int
	free func(arena []byte)
}

func (c *countingCollector) Collect(arena []byte) error {
	c.runs++
	if c.free != nil {
		c.free(arena)
	}
	return nil
}

func newArena(t *testing.T, size int) []byte {
	t.Helper()
	arena := make([]byte, size)
	require.NoError(t, InitArena(arena))
	return arena
}

func TestAllocateFromFreshArena(t *testing.T) {
	arena := newArena(t, 256)
	a := New(arena, noopRefZero{}, &countingCollector{}, nil)

	ref, err := a.Allocate(32)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.CellRef(0), ref)

	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateAllocated, h.AllocState)
	assert.Equal(t, uint32(1), h.RefCount)
	assert.GreaterOrEqual(t, int(h.DataSize), 32)
}

func TestAllocateSplitsLeavesFreeFragment(t *testing.T) {
	arena := newArena(t, 256)
	a := New(arena, noopRefZero{}, &countingCollector{}, nil)

	ref, err := a.Allocate(32)
	require.NoError(t, err)

	h, _ := cellfmt.ReadHeader(arena, ref)
	nextOff := cellfmt.CellRef(int(ref) + int(h.ExactSize))
	nh, err := cellfmt.ReadHeader(arena, nextOff)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateFree, nh.AllocState)
	assert.Equal(t, uint32(256)-h.ExactSize, nh.ExactSize)
}

func TestAllocateAbsorbsTinySurplus(t *testing.T) {
	// Arena sized so the leftover after a 32-byte request is under
	// MinFragmentSize and must be absorbed rather than split off.
	total := cellfmt.Align8(cellfmt.HeaderSize+32) + cellfmt.MinFragmentSize - cellfmt.CellAlignment
	arena := newArena(t, total)
	a := New(arena, noopRefZero{}, &countingCollector{}, nil)

	ref, err := a.Allocate(32)
	require.NoError(t, err)

	h, err := cellfmt.ReadHeader(arena, ref)
	require.NoError(t, err)
	assert.Equal(t, uint32(total), h.ExactSize, "surplus under MinFragmentSize must be absorbed")
}

func TestAllocateExactFitWrapsRoverToStart(t *testing.T) {
	arena := newArena(t, 64)
	a := New(arena, noopRefZero{}, &countingCollector{}, nil)

	// Header plus padding consumes the whole 64-byte arena exactly.
	_, err := a.Allocate(32)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.CellRef(0), a.rover, "an allocation consuming the arena end must wrap the rover")
}

func TestAllocateWrapsRoverAcrossArena(t *testing.T) {
	arena := newArena(t, 128)
	a := New(arena, noopRefZero{}, &countingCollector{}, nil)

	first, err := a.Allocate(16)
	require.NoError(t, err)
	second, err := a.Allocate(16)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// Free both by hand (simulating what refcount.Dec would do) and
	// confirm a subsequent allocation can reuse that space.
	h1, _ := cellfmt.ReadHeader(arena, first)
	_, err = cellfmt.InitFree(arena, first, h1.ExactSize)
	require.NoError(t, err)
	h2, _ := cellfmt.ReadHeader(arena, second)
	_, err = cellfmt.InitFree(arena, second, h2.ExactSize)
	require.NoError(t, err)

	third, err := a.Allocate(16)
	require.NoError(t, err)
	h3, _ := cellfmt.ReadHeader(arena, third)
	assert.Equal(t, cellfmt.StateAllocated, h3.AllocState)
}

func TestAllocateProcessesRefZeroCellsInPlace(t *testing.T) {
	arena := newArena(t, 128)
	a := New(arena, noopRefZero{}, &countingCollector{}, nil)

	ref, err := a.Allocate(16)
	require.NoError(t, err)
	h, _ := cellfmt.ReadHeader(arena, ref)
	h.AllocState = cellfmt.StateRefZero
	require.NoError(t, cellfmt.WriteHeader(arena, ref, h))

	var processed bool
	a2 := New(arena, refzeroFunc(func(arena []byte, r cellfmt.CellRef) error {
		processed = true
		_, err := cellfmt.InitFree(arena, r, h.ExactSize)
		return err
	}), &countingCollector{}, nil)
	a2.rover = ref

	_, err = a2.Allocate(16)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestAllocateInvokesCollectorOnExhaustionThenSucceeds(t *testing.T) {
	arena := newArena(t, 64)
	a := New(arena, noopRefZero{}, &countingCollector{}, nil)

	first, err := a.Allocate(32)
	require.NoError(t, err)

	collector := &countingCollector{free: func(arena []byte) {
		h, _ := cellfmt.ReadHeader(arena, first)
		_, _ = cellfmt.InitFree(arena, first, h.ExactSize)
	}}
	a.collector = collector

	_, err = a.Allocate(32)
	require.NoError(t, err)
	assert.Equal(t, 1, collector.runs)
}

func TestAllocateOutOfMemoryAfterSecondFailure(t *testing.T) {
	arena := newArena(t, 64)
	a := New(arena, noopRefZero{}, &countingCollector{}, nil)

	_, err := a.Allocate(32)
	require.NoError(t, err)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_, _ = a.Allocate(32)
	}()

	require.NotNil(t, recovered, "exhaustion after a forced collection must panic")
	appErr, ok := recovered.(*apperr.AppError)
	require.True(t, ok, "expected a *apperr.AppError panic, got %T", recovered)
	assert.True(t, apperr.IsOutOfMemory(appErr))
}

func TestAllocateRequestLargerThanArena(t *testing.T) {
	arena := newArena(t, 64)
	a := New(arena, noopRefZero{}, &countingCollector{}, nil)

	_, err := a.Allocate(1000)
	assert.ErrorIs(t, err, ErrRequestTooLarge)
}

type refzeroFunc func(arena []byte, ref cellfmt.CellRef) error

func (f refzeroFunc) ProcessRefZero(arena []byte, ref cellfmt.CellRef) error {
	return f(arena, ref)
}
