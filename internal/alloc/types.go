package alloc

import "github.com/chernykhds/phantomuserland/internal/cellfmt"

// RefZeroProcessor runs the deferred-free processor against a
// cell whose refcount has reached zero, decrementing its children and
// transitioning it to FREE. The allocator invokes this mid-search whenever
// its rover lands on a REFZERO cell.
type RefZeroProcessor interface {
	ProcessRefZero(arena []byte, ref cellfmt.CellRef) error
}

// Collector runs one stop-the-world mark/sweep pass over the
// arena. The allocator invokes this exactly once when a full rover sweep
// fails to find a fit, then retries the search a single time.
type Collector interface {
	Collect(arena []byte) error
}
