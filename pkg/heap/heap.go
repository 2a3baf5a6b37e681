package heap

import (
	"context"
	"fmt"

	"github.com/chernykhds/phantomuserland/internal/alloc"
	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/internal/dirty"
	"github.com/chernykhds/phantomuserland/internal/gc"
	"github.com/chernykhds/phantomuserland/internal/gcroots"
	"github.com/chernykhds/phantomuserland/internal/mmfile"
	"github.com/chernykhds/phantomuserland/internal/refcount"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
	"github.com/chernykhds/phantomuserland/pkg/logging"
)

// Heap is a persistent object heap: a single contiguous cell arena shared
// by an allocator, a refcount engine, a mark-generation collector, and a
// root registry. It is created with Init (in-process, ephemeral) or Open
// (memory-mapped, durable).
type Heap struct {
	arena []byte
	file  *mmfile.File   // nil for Init
	dirt  *dirty.Tracker // nil for Init

	allocator *alloc.Allocator
	refs      *refcount.Engine
	collector *gc.Collector
	roots     *gcroots.Registry

	log logging.Logger
}

func resolve(cfg Config) Config {
	if cfg.Supervisor == nil {
		cfg.Supervisor = noopMutatorSupervisor{}
	}
	if cfg.Log == nil {
		cfg.Log = logging.NullLogger{}
	}
	return cfg
}

// build assembles the allocator/refcount/collector/roots quartet over an
// already-laid-out arena, sharing the single allocator mutex between the
// allocator and the collector.
func build(arena []byte, cfg Config) *Heap {
	h := &Heap{arena: arena, log: cfg.Log}

	h.roots = gcroots.New(cfg.StaticRoots, cfg.DynamicRootCapacity)

	var classIterForRefs refcount.ClassIterator
	var classIterForGC gc.ClassIterator
	if cfg.ClassTable != nil {
		classIterForRefs = cfg.ClassTable
		classIterForGC = cfg.ClassTable
	}
	h.refs = refcount.New(classIterForRefs, cfg.Log)

	h.allocator = alloc.New(arena, h.refs, nil, cfg.Log)
	h.collector = gc.New(classIterForGC, h.roots, cfg.Supervisor, h.allocator.Mutex(), cfg.MarkAreaCapacity, cfg.Log)
	h.allocator.SetCollector(h.collector)
	return h
}

// Init creates a Heap over a freshly allocated in-process byte slice of
// exactly size bytes: ephemeral, not backed by any file. size must cover
// at least one minimum cell.
func Init(size int, cfg Config) (*Heap, error) {
	cfg = resolve(cfg)
	if err := checkCapacities(cfg); err != nil {
		return nil, err
	}
	arena := make([]byte, size)
	if err := alloc.InitArena(arena); err != nil {
		return nil, err
	}
	return build(arena, cfg), nil
}

// checkCapacities rejects a Config whose tunables were passed as
// negative by mistake, before any arena is touched.
func checkCapacities(cfg Config) error {
	if err := mustNotNegative(cfg.MarkAreaCapacity, "MarkAreaCapacity"); err != nil {
		return err
	}
	return mustNotNegative(cfg.DynamicRootCapacity, "DynamicRootCapacity")
}

// Open memory-maps path as the heap's durable backing store, creating it if necessary and sizing it to exactly
// size bytes. A freshly created file is laid out as one FREE cell; an
// existing file is trusted to already hold a valid arena. The returned
// Heap owns an internal/dirty.Tracker so callers can Flush only the pages
// touched since the last checkpoint.
func Open(path string, size int64, cfg Config) (*Heap, error) {
	cfg = resolve(cfg)
	if err := checkCapacities(cfg); err != nil {
		return nil, err
	}

	mf, err := mmfile.OpenWritable(path, size)
	if err != nil {
		return nil, err
	}

	arena := mf.Bytes()
	if isZeroed(arena) {
		if err := alloc.InitArena(arena); err != nil {
			_ = mf.Close()
			return nil, err
		}
	}

	h := build(arena, cfg)
	h.file = mf
	h.dirt = dirty.NewTracker(mf)
	h.restoreGeneration()
	return h, nil
}

// restoreGeneration resumes the collector's generation counter from the
// gc_flags of the first static root cell, its durable home across process
// restarts. With no static roots configured the counter restarts at zero,
// which never frees a reachable cell (every bump re-stamps the live graph
// before the sweep looks at generations) but can delay reclamation of
// stale cells by a few cycles.
func (h *Heap) restoreGeneration() {
	roots := h.roots.StaticRoots()
	if len(roots) == 0 {
		return
	}
	hdr, err := cellfmt.ReadHeader(h.arena, roots[0])
	if err != nil {
		h.log.Warn("heap: cannot restore generation from root cell %d: %v", roots[0], err)
		return
	}
	h.collector.SetGeneration(hdr.Generation())
}

func isZeroed(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Close flushes any pending dirty ranges (if this Heap was opened from a
// file) and unmaps the backing file. A no-op for a Heap created with Init.
func (h *Heap) Close() error {
	if h.file == nil {
		return nil
	}
	if h.dirt != nil {
		if err := h.dirt.FlushHeaderAndMeta(context.Background(), dirty.FlushFull); err != nil {
			return err
		}
	}
	return h.file.Close()
}

// Clear reinitialises the arena to a single FREE cell, destroying all
// contents.
func (h *Heap) Clear() error {
	for i := range h.arena {
		h.arena[i] = 0
	}
	if h.dirt != nil {
		h.dirt.Add(0, len(h.arena))
		h.dirt.Reset()
	}
	if err := alloc.InitArena(h.arena); err != nil {
		return err
	}
	h.allocator.Reset()
	return nil
}

// Allocate reserves a cell whose data area is at least dataSize bytes,
// returning the new cell's refcount-1 ALLOCATED reference.
func (h *Heap) Allocate(dataSize int) (cellfmt.CellRef, error) {
	ref, err := h.allocator.Allocate(dataSize)
	if err != nil {
		return cellfmt.NullRef, err
	}
	if h.dirt != nil {
		h.dirt.Add(int(ref), dataSize+cellfmt.HeaderSize)
	}
	return ref, nil
}

// IncRef increments ref's refcount.
func (h *Heap) IncRef(ref cellfmt.CellRef) {
	h.refs.Inc(h.arena, ref)
}

// DecRef decrements ref's refcount, reclaiming it (and, for a non-leaf
// internal cell, cascading through its children) once it reaches zero.
func (h *Heap) DecRef(ref cellfmt.CellRef) error {
	return h.refs.Dec(h.arena, ref)
}

// Saturate marks ref as immortal: never decremented, never reclaimed by
// reference counting or the collector.
func (h *Heap) Saturate(ref cellfmt.CellRef) {
	h.refs.Saturate(h.arena, ref)
}

// Collect runs one stop-the-world mark-generation collection cycle over
// the current root set. scanRegion, if non-nil, is conservatively scanned
// word by word for additional candidate roots, equivalent to calling
// SetScanRegion before Collect.
func (h *Heap) Collect(scanRegion []byte) error {
	if scanRegion != nil {
		h.collector.SetScanRegion(scanRegion)
	}
	return h.collector.Collect(h.arena)
}

// AddRoot registers ref as a dynamic root, surviving collection until
// explicitly removed. The root holds its own refcount unit, not backed by
// any cell, so the target also survives eager reference counting while
// registered.
func (h *Heap) AddRoot(ref cellfmt.CellRef) {
	h.refs.Inc(h.arena, ref)
	h.roots.Add(ref)
}

// RemoveRoot clears the first dynamic root entry matching ref and releases
// the refcount unit that entry held. Removing a ref that was never
// registered is a no-op.
func (h *Heap) RemoveRoot(ref cellfmt.CellRef) error {
	if !h.roots.Remove(ref) {
		return nil
	}
	return h.refs.Dec(h.arena, ref)
}

// Flush writes dirty arena ranges back to the backing file. A no-op for
// a Heap created with Init, which has no backing file.
func (h *Heap) Flush(ctx context.Context, mode dirty.FlushMode) error {
	if h.dirt == nil {
		return nil
	}
	if err := h.dirt.FlushDataOnly(ctx); err != nil {
		return err
	}
	return h.dirt.FlushHeaderAndMeta(ctx, mode)
}

// Arena exposes the raw backing bytes, for callers building a conservative
// scan region or inspecting a cell's payload directly (e.g. cmd/heapctl).
func (h *Heap) Arena() []byte {
	return h.arena
}

const refPairSize = 8

// SetRefPair writes the (data, interface) pair at index pairIdx of ref's
// packed reference payload. This is a raw field write: refcount
// accounting for the referenced cells stays with the caller.
func (h *Heap) SetRefPair(ref cellfmt.CellRef, pairIdx int, dataChild, ifaceChild cellfmt.CellRef) error {
	hdr, err := cellfmt.ReadHeader(h.arena, ref)
	if err != nil {
		return err
	}
	data, err := cellfmt.Data(h.arena, ref, hdr)
	if err != nil {
		return err
	}
	off := pairIdx * refPairSize
	if off < 0 || off+refPairSize > len(data) {
		return apperr.New(apperr.CodeCorruptHeap, fmt.Sprintf("heap: pair %d out of range for cell %d", pairIdx, ref))
	}
	cellfmt.PutU32(data, off, uint32(dataChild))
	cellfmt.PutU32(data, off+4, uint32(ifaceChild))
	if h.dirt != nil {
		h.dirt.Add(int(ref)+cellfmt.HeaderSize+off, refPairSize)
	}
	return nil
}

// ClearRefPairs writes the null reference into every packed (data,
// interface) pair slot of ref's payload. A freshly allocated cell's data
// area is zeroed, and offset 0 is itself a valid CellRef, so callers
// storing reference pairs must null the unused slots before the cell's
// references are ever walked.
func (h *Heap) ClearRefPairs(ref cellfmt.CellRef) error {
	hdr, err := cellfmt.ReadHeader(h.arena, ref)
	if err != nil {
		return err
	}
	data, err := cellfmt.Data(h.arena, ref, hdr)
	if err != nil {
		return err
	}
	for off := 0; off+refPairSize <= len(data); off += refPairSize {
		cellfmt.PutU32(data, off, uint32(cellfmt.NullRef))
		cellfmt.PutU32(data, off+4, uint32(cellfmt.NullRef))
	}
	if h.dirt != nil {
		h.dirt.Add(int(ref)+cellfmt.HeaderSize, len(data))
	}
	return nil
}

// mustNotNegative guards Config fields a caller might pass as a negative
// size by mistake; Init/Open reject those before touching the allocator.
func mustNotNegative(n int, name string) error {
	if n < 0 {
		return apperr.New(apperr.CodeCorruptHeap, fmt.Sprintf("heap: %s must be non-negative, got %d", name, n))
	}
	return nil
}
