package heap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/internal/dirty"
	"github.com/chernykhds/phantomuserland/internal/testutil"
)

// TestOpenCreatesAndLaysOutBackingFile: Open memory-maps a file, creating
// and laying it out as one FREE cell if it didn't already hold a valid
// arena.
func TestOpenCreatesAndLaysOutBackingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")

	h, err := Open(path, 4096, Config{})
	require.NoError(t, err)
	defer h.Close()

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, fi.Size())

	report := h.Memcheck()
	assert.True(t, report.OK)
	assert.Equal(t, 4096, report.FreeBytes)
}

// TestAllocationsSurviveCloseAndReopen is the heart of the durable-store
// contract: what an Open'd Heap wrote, flushed, and closed must read back
// identically from a fresh Open of the same file.
func TestAllocationsSurviveCloseAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")

	h1, err := Open(path, 4096, Config{})
	require.NoError(t, err)

	a, err := h1.Allocate(64)
	require.NoError(t, err)
	b, err := h1.Allocate(32)
	require.NoError(t, err)
	testutil.ClearPairs(t, h1.Arena(), a)
	testutil.ClearPairs(t, h1.Arena(), b)
	testutil.SetPair(t, h1.Arena(), a, 0, b, cellfmt.NullRef)
	h1.IncRef(b)

	require.NoError(t, h1.Flush(context.Background(), dirty.FlushFull))
	require.NoError(t, h1.Close())

	h2, err := Open(path, 4096, Config{})
	require.NoError(t, err)
	defer h2.Close()

	report := h2.Memcheck()
	assert.True(t, report.OK)
	assert.Equal(t, 2, report.Objects)

	aHdr, err := cellfmt.ReadHeader(h2.Arena(), a)
	require.NoError(t, err)
	assert.Equal(t, cellfmt.StateAllocated, aHdr.AllocState)

	bHdr, err := cellfmt.ReadHeader(h2.Arena(), b)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), bHdr.RefCount) // allocate-time ref + a's pair

	require.NoError(t, h2.DecRef(b)) // drop a's held ref
	require.NoError(t, h2.DecRef(b)) // drop the original allocate-time ref
	assert.Equal(t, cellfmt.StateFree, stateOf(t, h2, b))
}

// TestCloseIsNoOpForInProcessHeap: a Heap created with Init has no backing
// file, so Close and Flush must be no-ops rather than nil-pointer panics.
func TestCloseIsNoOpForInProcessHeap(t *testing.T) {
	h, err := Init(256, Config{})
	require.NoError(t, err)

	assert.NoError(t, h.Flush(context.Background(), dirty.FlushAuto))
	assert.NoError(t, h.Close())
}

type fixedRoots []cellfmt.CellRef

func (f fixedRoots) StaticRoots() []cellfmt.CellRef { return f }

// The collection generation counter's durable home is the root cell's
// gc_flags: reopening a collected arena resumes the counter from the
// stored value rather than restarting at zero.
func TestGenerationCounterSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.bin")
	cfg := Config{StaticRoots: fixedRoots{0}}

	h1, err := Open(path, 4096, cfg)
	require.NoError(t, err)

	root, err := h1.Allocate(32)
	require.NoError(t, err)
	require.Equal(t, cellfmt.CellRef(0), root)
	require.NoError(t, h1.ClearRefPairs(root))

	require.NoError(t, h1.Collect(nil)) // stamps the root cell with generation 1
	require.NoError(t, h1.Flush(context.Background(), dirty.FlushFull))
	require.NoError(t, h1.Close())

	h2, err := Open(path, 4096, cfg)
	require.NoError(t, err)
	defer h2.Close()

	// The restored counter resumes at 1, so the next collection stamps 2.
	require.NoError(t, h2.Collect(nil))
	hdr, err := cellfmt.ReadHeader(h2.Arena(), root)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), hdr.Generation())
}
