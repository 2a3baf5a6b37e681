package gc

import (
	"fmt"
	"sync"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
	"github.com/chernykhds/phantomuserland/pkg/logging"
)

const refPairSize = 8

// ChildVisitor is invoked once per outgoing reference a cell holds. Alias
// (not a distinct named type) so a single external class-iterator
// implementation can satisfy both this package's ClassIterator and
// internal/refcount's.
type ChildVisitor = cellfmt.ChildVisitor

// ClassIterator enumerates the outgoing references of an internal,
// non-leaf cell. Supplied by the external class table. This mirrors
// internal/refcount.ClassIterator in shape only; the two packages share
// no import, so cycle collection stays testable without the refcount
// engine.
type ClassIterator interface {
	IterateChildren(arena []byte, classData, classIface cellfmt.CellRef, data []byte, visit ChildVisitor) error
}

// MutatorSupervisor pauses and resumes every other thread touching the
// arena for the duration of phase 1.
type MutatorSupervisor interface {
	StopMutators()
	ResumeMutators()
}

// RootSource supplies the current root set at the start of a collection.
// internal/gcroots.Registry implements this.
type RootSource interface {
	Roots() []cellfmt.CellRef
}

// Collector implements the stop-the-world mark-generation algorithm and
// satisfies internal/alloc.Collector.
type Collector struct {
	classIter  ClassIterator
	roots      RootSource
	supervisor MutatorSupervisor
	allocMu    sync.Locker
	markAreaN  int
	log        logging.Logger

	genMu             sync.Mutex
	currentGeneration uint8

	scanMu     sync.Mutex
	scanRegion []byte
}

// New creates a Collector. allocMu must be the same mutex the paired
// internal/alloc.Allocator serialises on — phase 2 (sweep) takes it
// explicitly since the allocator may resume running mutators as soon as
// phase 1 finishes.
// markAreaCapacity <= 0 uses DefaultMarkAreaCapacity.
func New(classIter ClassIterator, roots RootSource, supervisor MutatorSupervisor, allocMu sync.Locker, markAreaCapacity int, log logging.Logger) *Collector {
	if log == nil {
		log = logging.NullLogger{}
	}
	if markAreaCapacity <= 0 {
		markAreaCapacity = DefaultMarkAreaCapacity
	}
	return &Collector{
		classIter:  classIter,
		roots:      roots,
		supervisor: supervisor,
		allocMu:    allocMu,
		markAreaN:  markAreaCapacity,
		log:        log,
	}
}

// SetGeneration seeds the generation counter. Used when reopening a
// persisted arena: the counter's durable home is the gc_flags of the
// root cell, and collection should resume from the stored value instead
// of restarting at zero.
func (c *Collector) SetGeneration(gen uint8) {
	c.genMu.Lock()
	c.currentGeneration = gen & cellfmt.GenerationMask
	c.genMu.Unlock()
}

// SetScanRegion installs the caller-supplied conservatively-rooted memory
// region consulted after the main sweep. Pass nil to disable
// the conservative scan entirely.
func (c *Collector) SetScanRegion(region []byte) {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()
	c.scanRegion = region
}

func mustReadHeader(arena []byte, ref cellfmt.CellRef) cellfmt.Header {
	h, err := cellfmt.ReadHeader(arena, ref)
	if err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("gc: cell %d", ref), err))
	}
	return h
}

func mustWriteHeader(arena []byte, ref cellfmt.CellRef, h cellfmt.Header) {
	if err := cellfmt.WriteHeader(arena, ref, h); err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("gc: cell %d", ref), err))
	}
}

// Collect runs one full collection cycle: bump, an optional conservative
// rescan, then sweep.
func (c *Collector) Collect(arena []byte) error {
	c.supervisor.StopMutators()
	defer c.supervisor.ResumeMutators()

	c.genMu.Lock()
	c.currentGeneration = (c.currentGeneration + 1) % cellfmt.GenerationModulus
	gen := c.currentGeneration
	c.genMu.Unlock()

	c.bump(arena, gen, c.roots.Roots())

	c.scanMu.Lock()
	region := c.scanRegion
	c.scanMu.Unlock()
	if len(region) > 0 {
		extra := conservativeRoots(arena, region)
		if len(extra) > 0 {
			c.log.Debug("conservative scan found additional roots")
			c.bump(arena, gen, extra)
		}
	}

	c.allocMu.Lock()
	defer c.allocMu.Unlock()
	return c.sweep(arena, gen)
}

// bump runs phase 1 seeded with roots: a forward sweep-pointer pass over
// the whole arena, marking and stamping every cell reachable from roots.
func (c *Collector) bump(arena []byte, gen uint8, roots []cellfmt.CellRef) {
	area := newMarkArea(c.markAreaN)
	sweep := cellfmt.CellRef(0)

	for _, r := range roots {
		c.seedRoot(arena, r, sweep, area)
	}

	for int(sweep) < len(arena) {
		h := mustReadHeader(arena, sweep)

		if h.AllocState != cellfmt.StateFree && h.Marked() {
			c.processAndStamp(arena, sweep, sweep, gen, area)
		}

		for !area.empty() {
			ref, _ := area.pop()
			rh := mustReadHeader(arena, ref)
			if rh.AllocState == cellfmt.StateFree || rh.Generation() == gen {
				continue
			}
			c.processAndStamp(arena, ref, sweep, gen, area)
		}

		h = mustReadHeader(arena, sweep)
		next, ok := cellfmt.Next(arena, sweep, h)
		if !ok {
			break
		}
		sweep = next
	}
}

// seedRoot applies the root-seeding rule: a root above the sweep
// pointer is marked for later visitation, one at or below it is queued for
// immediate processing.
func (c *Collector) seedRoot(arena []byte, ref, sweep cellfmt.CellRef, area *markArea) {
	if ref == cellfmt.NullRef {
		return
	}
	if ref > sweep {
		h := mustReadHeader(arena, ref)
		h.GCFlags |= cellfmt.MarkBit
		mustWriteHeader(arena, ref, h)
		return
	}
	area.push(ref)
}

// processAndStamp processes ref's children with respect to sweep position
// S, then clears its MARK bit and stamps its generation current.
func (c *Collector) processAndStamp(arena []byte, ref, sweep cellfmt.CellRef, gen uint8, area *markArea) {
	h := mustReadHeader(arena, ref)
	c.processChildren(arena, ref, h, sweep, gen, area)

	h = mustReadHeader(arena, ref)
	h.GCFlags &^= cellfmt.MarkBit
	h.GCFlags = (h.GCFlags &^ cellfmt.GenerationMask) | (gen & cellfmt.GenerationMask)
	mustWriteHeader(arena, ref, h)
}

// processChildren visits every outgoing reference of ref and applies the
// mark-or-queue rule. The class.data/class.interface header fields are
// genuine reference fields and are visited for every cell, internal or
// not, before any payload dispatch: skipping them would let an object
// reachable only by being named as another live object's class go
// unmarked and get swept.
func (c *Collector) processChildren(arena []byte, ref cellfmt.CellRef, h cellfmt.Header, sweep cellfmt.CellRef, gen uint8, area *markArea) {
	c.visitChild(arena, h.ClassData, sweep, gen, area)
	c.visitChild(arena, h.ClassIface, sweep, gen, area)

	visit := func(child cellfmt.CellRef) error {
		c.visitChild(arena, child, sweep, gen, area)
		return nil
	}

	// Leaf payloads (STRING/INT/CODE) hold raw data, never references.
	// CLASS and INTERFACE cells are not leaves here: a class object's own
	// reference fields keep its superclass and method objects reachable,
	// so they still dispatch to the class iterator below.
	if h.Flags.IsLeaf() {
		return
	}

	if h.Flags&cellfmt.FlagInternal != 0 {
		data, err := cellfmt.Data(arena, ref, h)
		if err != nil {
			panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("gc: cell %d data", ref), err))
		}
		if c.classIter == nil {
			return
		}
		if err := c.classIter.IterateChildren(arena, h.ClassData, h.ClassIface, data, visit); err != nil {
			panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("gc: class iterator on cell %d", ref), err))
		}
		return
	}

	data, err := cellfmt.Data(arena, ref, h)
	if err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("gc: cell %d data", ref), err))
	}
	for off := 0; off+refPairSize <= len(data); off += refPairSize {
		dataChild := cellfmt.CellRef(cellfmt.ReadU32(data, off))
		ifaceChild := cellfmt.CellRef(cellfmt.ReadU32(data, off+4))
		c.visitChild(arena, dataChild, sweep, gen, area)
		c.visitChild(arena, ifaceChild, sweep, gen, area)
	}
}

func (c *Collector) visitChild(arena []byte, ref, sweep cellfmt.CellRef, gen uint8, area *markArea) {
	if ref == cellfmt.NullRef {
		return
	}
	h := mustReadHeader(arena, ref)
	if h.AllocState == cellfmt.StateFree || h.Generation() == gen {
		return
	}
	if ref > sweep {
		h.GCFlags |= cellfmt.MarkBit
		mustWriteHeader(arena, ref, h)
		return
	}
	area.push(ref)
}

// sweep runs phase 2: any non-saturated ALLOCATED cell one or two
// generations behind current is freed; a cell still carrying MARK is a
// corrupt-heap fault. Unlike pkg/heap.Memcheck's use of cellfmt.Walk
// (which reports a structural failure back to its caller), a corrupt heap
// found mid-sweep is fatal like everywhere else in the core, so this
// walks by hand with mustReadHeader rather than going through
// cellfmt.Walk's plain-error path.
func (c *Collector) sweep(arena []byte, gen uint8) error {
	off := cellfmt.CellRef(0)
	for int(off) < len(arena) {
		h := mustReadHeader(arena, off)

		if h.AllocState == cellfmt.StateAllocated {
			if h.Marked() {
				panic(apperr.New(apperr.CodeCorruptHeap, fmt.Sprintf("gc: cell %d still marked at sweep", off)))
			}
			// Saturated cells are immortal: they stay live no matter
			// how far their generation lags.
			if isStale(h.Generation(), gen) && h.RefCount != cellfmt.MaxRefCount {
				if _, err := cellfmt.InitFree(arena, off, h.ExactSize); err != nil {
					panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("gc: freeing cell %d", off), err))
				}
				h = mustReadHeader(arena, off)
			}
		}

		next, ok := cellfmt.Next(arena, off, h)
		if !ok {
			break
		}
		off = next
	}
	return nil
}

// isStale reports whether gen lags current by one or two slots, mod
// GenerationModulus.
func isStale(gen, current uint8) bool {
	lag := (int(current) - int(gen) + cellfmt.GenerationModulus) % cellfmt.GenerationModulus
	return lag == 1 || lag == 2
}
