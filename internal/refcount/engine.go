package refcount

import (
	"fmt"
	"sync"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
	"github.com/chernykhds/phantomuserland/pkg/logging"
)

// ChildVisitor receives one outgoing reference during class-driven
// traversal of an internal, non-leaf cell. Alias (not a distinct named
// type) so a single external class-iterator implementation can satisfy
// both this package's ClassIterator and internal/gc's.
type ChildVisitor = cellfmt.ChildVisitor

// ClassIterator is supplied by the external class table (the object model
// that sits above this heap) to enumerate the outgoing references of a
// cell whose data area isn't a plain packed (data, interface) sequence.
type ClassIterator interface {
	IterateChildren(arena []byte, classData, classIface cellfmt.CellRef, data []byte, visit ChildVisitor) error
}

// Engine is the refcount bookkeeping and deferred-free processor for one
// arena.
type Engine struct {
	mu        sync.Mutex // stands in for per-cell atomic refcount access
	refzeroMu sync.Mutex // refzero_spinlock: serializes deferred-free entry
	classIter ClassIterator
	log       logging.Logger
}

// New creates an Engine. classIter may be nil if the heap never holds
// INTERNAL non-leaf cells (e.g. in tests that only exercise packed
// reference-pair cells).
func New(classIter ClassIterator, log logging.Logger) *Engine {
	if log == nil {
		log = logging.NullLogger{}
	}
	return &Engine{classIter: classIter, log: log}
}

func mustReadHeader(arena []byte, ref cellfmt.CellRef) cellfmt.Header {
	h, err := cellfmt.ReadHeader(arena, ref)
	if err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("refcount: cell %d", ref), err))
	}
	return h
}

func mustWriteHeader(arena []byte, ref cellfmt.CellRef, h cellfmt.Header) {
	if err := cellfmt.WriteHeader(arena, ref, h); err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("refcount: cell %d", ref), err))
	}
}

// Inc increments ref's refcount unless it is already saturated.
func (e *Engine) Inc(arena []byte, ref cellfmt.CellRef) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := mustReadHeader(arena, ref)
	if err := cellfmt.AssertAllocated(h); err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("refcount: inc on cell %d", ref), err))
	}
	if h.RefCount == cellfmt.MaxRefCount {
		return
	}
	h.RefCount++
	mustWriteHeader(arena, ref, h)
}

// Saturate sets ref's refcount to MaxRefCount, making it immune to future
// decrements. This is irreversible.
func (e *Engine) Saturate(arena []byte, ref cellfmt.CellRef) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := mustReadHeader(arena, ref)
	if err := cellfmt.AssertAllocated(h); err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("refcount: saturate on cell %d", ref), err))
	}
	h.RefCount = cellfmt.MaxRefCount
	mustWriteHeader(arena, ref, h)
}

// Dec decrements ref's refcount. If the count reaches zero the cell
// transitions to FREE (leaf types) or REFZERO, and in the latter case the
// deferred-free processor runs against it before Dec returns.
func (e *Engine) Dec(arena []byte, ref cellfmt.CellRef) error {
	zero, leaf := e.decrementFields(arena, ref)
	if !zero || leaf {
		return nil
	}
	return e.ProcessRefZero(arena, ref)
}

// decrementFields applies one decrement to ref, performing the zero
// transition in place when the count reaches zero. zero reports whether
// this call caused the transition; leaf reports whether it went straight
// to FREE (no further processing needed).
func (e *Engine) decrementFields(arena []byte, ref cellfmt.CellRef) (zero, leaf bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := mustReadHeader(arena, ref)
	if err := cellfmt.AssertAllocated(h); err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("refcount: dec on cell %d", ref), err))
	}
	if h.RefCount == cellfmt.MaxRefCount {
		return false, false
	}
	if h.RefCount == 0 {
		panic(apperr.Wrap(apperr.CodeRefcountUnderflow, fmt.Sprintf("cell %d", ref), apperr.ErrRefcountUnderflow))
	}

	h.RefCount--
	if h.RefCount > 0 {
		mustWriteHeader(arena, ref, h)
		return false, false
	}

	if h.Flags.IsLeaf() {
		if _, err := cellfmt.InitFree(arena, ref, h.ExactSize); err != nil {
			panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("refcount: cell %d", ref), err))
		}
		return true, true
	}

	h.AllocState = cellfmt.StateRefZero
	mustWriteHeader(arena, ref, h)
	return true, false
}
