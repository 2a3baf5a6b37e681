package gc

import (
	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
)

// DefaultMarkAreaCapacity bounds the mark area's work list. The bound
// exists so a corrupt or pathologically deep object graph fails loudly
// instead of growing without limit; raise it via the collector's
// markAreaCapacity if a legitimate graph ever gets near it.
const DefaultMarkAreaCapacity = 64 * 1024

// markArea is the bounded work stack phase 1 drains below the sweep
// pointer: a plain capacity-bounded stack. Reachability is recorded on the
// cell header itself (MARK bit, generation), not in an auxiliary
// structure, so the only state this type owns is the pending work list.
type markArea struct {
	items    []cellfmt.CellRef
	capacity int
}

func newMarkArea(capacity int) *markArea {
	if capacity <= 0 {
		capacity = DefaultMarkAreaCapacity
	}
	initial := capacity
	if initial > 256 {
		initial = 256
	}
	return &markArea{items: make([]cellfmt.CellRef, 0, initial), capacity: capacity}
}

// push queues ref for immediate re-processing. Panics with MARK_AREA_OVERFLOW
// if the work list is already at capacity.
func (m *markArea) push(ref cellfmt.CellRef) {
	if len(m.items) >= m.capacity {
		panic(apperr.ErrMarkAreaOverflow)
	}
	m.items = append(m.items, ref)
}

// pop removes and returns the most recently pushed item.
func (m *markArea) pop() (cellfmt.CellRef, bool) {
	n := len(m.items)
	if n == 0 {
		return cellfmt.NullRef, false
	}
	ref := m.items[n-1]
	m.items = m.items[:n-1]
	return ref, true
}

func (m *markArea) empty() bool {
	return len(m.items) == 0
}
