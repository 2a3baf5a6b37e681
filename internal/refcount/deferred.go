package refcount

import (
	"fmt"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
)

// internalLeafFlags are the INTERNAL flag combinations with no outgoing
// references at all. Note this set includes
// CLASS and INTERFACE, unlike cellfmt.Flags.IsLeaf (which is the narrower
// "leaf w.r.t. the refcount zero-transition" predicate used by Dec).
const internalLeafFlags = cellfmt.FlagString | cellfmt.FlagInt | cellfmt.FlagCode | cellfmt.FlagClass | cellfmt.FlagInterface

// refPairSize is the byte size of one packed (data, interface) CellRef pair.
const refPairSize = 8

// ProcessRefZero runs the deferred-free processor against ref: decrements
// every outgoing reference this cell holds, then marks it FREE. Callers
// that find a REFZERO cell mid-scan (the allocator's rover) or mid-sweep
// invoke this directly.
func (e *Engine) ProcessRefZero(arena []byte, ref cellfmt.CellRef) error {
	e.refzeroMu.Lock()
	defer e.refzeroMu.Unlock()
	return e.processRefZeroLocked(arena, ref)
}

func (e *Engine) processRefZeroLocked(arena []byte, ref cellfmt.CellRef) error {
	h := mustReadHeader(arena, ref)
	if h.AllocState != cellfmt.StateRefZero {
		// Already processed by a racing path; nothing to do.
		return nil
	}

	if err := e.decChildrenLocked(arena, ref, h); err != nil {
		return err
	}

	if _, err := cellfmt.InitFree(arena, ref, h.ExactSize); err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("refcount: cell %d", ref), err))
	}
	return nil
}

// decChildrenLocked dispatches on h.Flags to decrement every outgoing
// reference of the cell at ref. Called with refzeroMu held, so any
// recursive zero transition is processed inline via decInternalLocked
// rather than re-entering the public, lock-acquiring ProcessRefZero.
func (e *Engine) decChildrenLocked(arena []byte, ref cellfmt.CellRef, h cellfmt.Header) error {
	if h.Flags&cellfmt.FlagInternal == 0 {
		return e.decPackedPairsLocked(arena, ref, h)
	}
	if h.Flags&internalLeafFlags != 0 {
		return nil
	}
	if e.classIter == nil {
		return nil
	}
	data, err := cellfmt.Data(arena, ref, h)
	if err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("refcount: cell %d", ref), err))
	}
	return e.classIter.IterateChildren(arena, h.ClassData, h.ClassIface, data, func(child cellfmt.CellRef) error {
		if child == cellfmt.NullRef {
			return nil
		}
		return e.decInternalLocked(arena, child)
	})
}

// decPackedPairsLocked decrements the .data field of every (data, interface)
// pair in a non-internal cell's payload. The .interface field of each pair
// is intentionally never decremented: only the .data half of a pair owns
// a count unit. Do not "fix" this without consulting DESIGN.md.
func (e *Engine) decPackedPairsLocked(arena []byte, ref cellfmt.CellRef, h cellfmt.Header) error {
	data, err := cellfmt.Data(arena, ref, h)
	if err != nil {
		panic(apperr.Wrap(apperr.CodeCorruptHeap, fmt.Sprintf("refcount: cell %d", ref), err))
	}
	for off := 0; off+refPairSize <= len(data); off += refPairSize {
		child := cellfmt.CellRef(cellfmt.ReadU32(data, off))
		if child == cellfmt.NullRef {
			continue
		}
		if err := e.decInternalLocked(arena, child); err != nil {
			return err
		}
	}
	return nil
}

// decInternalLocked is Dec's logic re-entered while refzeroMu is already
// held by an enclosing ProcessRefZero call.
func (e *Engine) decInternalLocked(arena []byte, ref cellfmt.CellRef) error {
	zero, leaf := e.decrementFields(arena, ref)
	if !zero || leaf {
		return nil
	}
	return e.processRefZeroLocked(arena, ref)
}
