// Package gc implements the heap's mark-generation collector:
// the stop-the-world backstop that reclaims reference cycles the eager
// refcounting in internal/refcount cannot.
//
// The collector has no import-time dependency on internal/refcount; it only
// requires the same child-iteration capability (a ClassIterator), kept as
// its own interface so the cycle collector is testable without wiring up
// the refcount engine at all.
//
// Algorithm, in two stop-the-world phases:
//
//  1. Bump — current_generation advances by one (mod GenerationModulus).
//     A sweep pointer walks the arena from offset 0. Roots above the sweep
//     pointer are marked directly; roots at or below it are queued onto a
//     bounded mark area for immediate processing. As the sweep pointer
//     passes each cell, a marked cell has its children processed (pointers
//     above the sweep pointer get MARK set, pointers at or below get pushed
//     onto the mark area) and its generation stamped current, then its MARK
//     bit is cleared. This forward-sweep-with-backfill visits every
//     reachable cell in one pass regardless of which direction its
//     references point.
//
//  2. Sweep — any ALLOCATED cell whose generation lags current_generation
//     by one or two (mod GenerationModulus) is freed. The two-generation
//     tolerance is a conservative margin, not a precision requirement. A
//     cell still carrying MARK at sweep time is never freed; finding one
//     is a corrupt-heap condition.
//
// Between the two phases a conservative scan of a caller-supplied byte
// region (ScanRegion) treats every aligned word as a candidate pointer; any
// that resolves to a genuine cell boundary (confirmed by walking backward
// until a neighboring cell's size exactly accounts for the distance) is fed
// back into phase 1 as an extra root, and phase 1 re-runs so newly
// discovered reachability propagates. The region is caller-supplied
// because Go has no portable way to name the bounds of the process's
// static data segment; the embedder decides what memory to treat as
// conservatively rooted.
package gc
