package gcroots

import (
	"sync"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
)

// DefaultCapacity is the default size of the dynamic root array. The
// bound makes a leak of dynamic roots (native code registering without
// ever removing) fail loudly instead of growing without limit.
const DefaultCapacity = 64 * 1024

// StaticRootsProvider resolves the VM's fixed, named root fields (class
// registry, null-object singleton, thread list, windows list, user list,
// kernel environment, OS entry point, every built-in internal class) at
// collection time. These live in the external object model, not in this
// heap, so the registry only ever consumes this narrow capability.
type StaticRootsProvider interface {
	StaticRoots() []cellfmt.CellRef
}

// Registry is the heap's root set: a static provider consulted read-only,
// plus a dynamic array guarded by its own mutex.
type Registry struct {
	static StaticRootsProvider

	mu       sync.Mutex
	dynamic  []cellfmt.CellRef
	capacity int
}

// New creates a Registry. static may be nil if the embedder has no static
// roots yet (e.g. during a unit test); capacity <= 0 uses DefaultCapacity.
func New(static StaticRootsProvider, capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{static: static, capacity: capacity}
}

// SetStaticRootsProvider (re)assigns the static root source. Useful when
// the VM's root structure isn't available yet at Registry construction.
func (r *Registry) SetStaticRootsProvider(p StaticRootsProvider) {
	r.static = p
}

// StaticRoots returns the current static root set. These are always
// marked by the collector.
func (r *Registry) StaticRoots() []cellfmt.CellRef {
	if r.static == nil {
		return nil
	}
	return r.static.StaticRoots()
}

// Add registers ref as a dynamic root, reusing the first available hole
// left by a prior Remove before growing the array. Panics with
// DYNROOTS_OVERFLOW if the registry is already at capacity.
func (r *Registry) Add(ref cellfmt.CellRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.dynamic {
		if existing == cellfmt.NullRef {
			r.dynamic[i] = ref
			return
		}
	}
	if len(r.dynamic) >= r.capacity {
		panic(apperr.ErrDynRootsOverflow)
	}
	r.dynamic = append(r.dynamic, ref)
}

// Remove clears the first dynamic root entry matching ref to NullRef,
// leaving a hole future Add calls may reuse, and reports whether an entry
// was cleared. Removing a ref that isn't present is a no-op.
func (r *Registry) Remove(ref cellfmt.CellRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.dynamic {
		if existing == ref {
			r.dynamic[i] = cellfmt.NullRef
			return true
		}
	}
	return false
}

// DynamicRoots returns a snapshot of the current dynamic root array,
// holes included as NullRef entries (the collector skips them).
func (r *Registry) DynamicRoots() []cellfmt.CellRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]cellfmt.CellRef, len(r.dynamic))
	copy(out, r.dynamic)
	return out
}

// Roots returns every root the collector should seed: the full static set
// followed by every non-null dynamic entry.
func (r *Registry) Roots() []cellfmt.CellRef {
	static := r.StaticRoots()
	dynamic := r.DynamicRoots()

	roots := make([]cellfmt.CellRef, 0, len(static)+len(dynamic))
	roots = append(roots, static...)
	for _, ref := range dynamic {
		if ref != cellfmt.NullRef {
			roots = append(roots, ref)
		}
	}
	return roots
}
