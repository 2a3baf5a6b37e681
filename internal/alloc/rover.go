package alloc

import (
	"fmt"
	"sync"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
	"github.com/chernykhds/phantomuserland/pkg/logging"
)

// Allocator is the rover-based first-fit allocator over a fixed-size
// arena. It never grows the arena; exhaustion triggers one
// Collector pass before giving up.
type Allocator struct {
	mu        sync.Mutex
	arena     []byte
	rover     cellfmt.CellRef
	refzero   RefZeroProcessor
	collector Collector
	log       logging.Logger
}

// New creates an Allocator over arena, starting its rover at offset 0.
// arena must already be laid out as a sequence of valid cell headers
// tiling its full length (see InitArena).
func New(arena []byte, refzero RefZeroProcessor, collector Collector, log logging.Logger) *Allocator {
	if log == nil {
		log = logging.NullLogger{}
	}
	return &Allocator{
		arena:     arena,
		refzero:   refzero,
		collector: collector,
		log:       log,
	}
}

// SetCollector wires the Collector an Allocator invokes on exhaustion.
// Needed when the collector itself is built from this Allocator's Mutex
//, which creates an unavoidable construction cycle:
// the Allocator must exist before the Collector can be built, but the
// Collector must exist before the Allocator can be used.
func (a *Allocator) SetCollector(collector Collector) {
	a.collector = collector
}

// InitArena lays out a freshly zeroed arena as a single FREE cell spanning
// its entire length. len(arena) must be a multiple of CellAlignment and at
// least cellfmt.MinCellSize.
func InitArena(arena []byte) error {
	if len(arena) < cellfmt.MinCellSize {
		return fmt.Errorf("alloc: arena of %d bytes is smaller than a cell header", len(arena))
	}
	if len(arena)%cellfmt.CellAlignment != 0 {
		return fmt.Errorf("alloc: arena length %d is not %d-byte aligned", len(arena), cellfmt.CellAlignment)
	}
	_, err := cellfmt.InitFree(arena, 0, uint32(len(arena)))
	return err
}

// Allocate returns a cell whose data area is at least dataSize bytes,
// zero-initialised, ALLOCATED, with refcount 1.
// Panics with an *apperr.AppError (OUT_OF_MEMORY) if no fit exists even
// after invoking the collector once, and with CORRUPT_HEAP if the arena
// fails a structural check mid-search — both are unrecoverable.
func (a *Allocator) Allocate(dataSize int) (cellfmt.CellRef, error) {
	want := cellfmt.Align8(cellfmt.HeaderSize + dataSize)
	if want < cellfmt.MinCellSize {
		want = cellfmt.MinCellSize
	}
	if want > len(a.arena) {
		return cellfmt.NullRef, ErrRequestTooLarge
	}

	a.mu.Lock()
	ref, found := a.scan(want)
	a.mu.Unlock()
	if found {
		return ref, nil
	}

	a.log.Debug("allocator exhausted, invoking collector")
	if cerr := a.collector.Collect(a.arena); cerr != nil {
		return cellfmt.NullRef, cerr
	}

	a.mu.Lock()
	ref, found = a.scan(want)
	a.mu.Unlock()
	if !found {
		panic(apperr.Wrap(apperr.CodeOutOfMemory, fmt.Sprintf("no free cell for %d bytes after collection", dataSize), apperr.ErrOutOfMemory))
	}
	return ref, nil
}

// Reset returns the rover to the start of the arena. Required after the
// arena has been re-laid-out underneath the allocator (Clear), when the
// rover's old offset may no longer be a cell boundary.
func (a *Allocator) Reset() {
	a.mu.Lock()
	a.rover = 0
	a.mu.Unlock()
}

// Mutex returns the allocator's critical-section lock. internal/gc takes this explicitly during phase 2 of a
// collection so the allocator cannot split or absorb a cell the sweep is
// currently inspecting.
func (a *Allocator) Mutex() sync.Locker {
	return &a.mu
}

func mustReadHeader(arena []byte, ref cellfmt.CellRef) cellfmt.Header {
	h, err := cellfmt.ReadHeader(arena, ref)
	if err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("alloc: cell %d", ref), err))
	}
	return h
}

func mustWriteHeader(arena []byte, ref cellfmt.CellRef, h cellfmt.Header) {
	if err := cellfmt.WriteHeader(arena, ref, h); err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("alloc: cell %d", ref), err))
	}
}

// scan performs exactly one rover sweep, wrapping once at the arena end,
// looking for a fit of want bytes. found is false if the sweep returned to
// its own starting point without satisfying the request.
func (a *Allocator) scan(want int) (ref cellfmt.CellRef, found bool) {
	start := a.rover
	cur := start

	for {
		h := mustReadHeader(a.arena, cur)

		switch h.AllocState {
		case cellfmt.StateAllocated:
			next := cellfmt.WrapNext(a.arena, cur, h)
			if next == start {
				return cellfmt.NullRef, false
			}
			cur = next

		case cellfmt.StateRefZero:
			if err := a.refzero.ProcessRefZero(a.arena, cur); err != nil {
				panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("alloc: deferred-free on cell %d", cur), err))
			}
			// cur is now FREE; re-examine it on the next loop iteration.

		case cellfmt.StateFree:
			combined := a.coalesce(cur, h)
			if int(combined.ExactSize) >= want {
				return a.splitOrAbsorb(cur, combined, want), true
			}
			next := cellfmt.WrapNext(a.arena, cur, combined)
			if next == start {
				return cellfmt.NullRef, false
			}
			cur = next

		default:
			panic(apperr.New(apperr.CodeCorruptHeap, fmt.Sprintf("alloc: cell %d has unknown alloc_state %d", cur, h.AllocState)))
		}
	}
}

// coalesce repeatedly merges cur's FREE cell with its immediate successor
// while that successor is also FREE, writing the merged header back after
// each step so the arena remains structurally valid even if the search
// moves on without using this cell: no two adjacent FREE cells remain
// behind the rover once it has inspected a candidate.
func (a *Allocator) coalesce(cur cellfmt.CellRef, h cellfmt.Header) cellfmt.Header {
	for {
		next, ok := cellfmt.Next(a.arena, cur, h)
		if !ok {
			return h
		}
		nh := mustReadHeader(a.arena, next)
		if nh.AllocState != cellfmt.StateFree {
			return h
		}
		h.ExactSize += nh.ExactSize
		mustWriteHeader(a.arena, cur, h)
	}
}

// splitOrAbsorb carves a want-byte ALLOCATED cell out of the combined FREE
// region starting at cur. If the leftover is smaller than
// cellfmt.MinFragmentSize it is absorbed into the allocation instead of
// being left as its own fragment.
func (a *Allocator) splitOrAbsorb(cur cellfmt.CellRef, combined cellfmt.Header, want int) cellfmt.CellRef {
	surplus := int(combined.ExactSize) - want
	total := want
	if surplus > 0 && surplus < cellfmt.MinFragmentSize {
		total = int(combined.ExactSize)
	}

	newHeader, err := cellfmt.InitAllocated(a.arena, cur, uint32(total))
	if err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("alloc: cell %d", cur), err))
	}

	if total < int(combined.ExactSize) {
		fragOff := cellfmt.CellRef(int(cur) + total)
		fragSize := uint32(int(combined.ExactSize) - total)
		if _, err := cellfmt.InitFree(a.arena, fragOff, fragSize); err != nil {
			panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("alloc: cell %d", fragOff), err))
		}
		a.rover = fragOff
	} else {
		a.rover = cellfmt.WrapNext(a.arena, cur, newHeader)
	}

	return cur
}
