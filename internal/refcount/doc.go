// Package refcount implements the heap's eager reference-count engine
// and the deferred-free processor that walks a just-zeroed
// cell's children.
//
// # Zero transition
//
// A leaf cell (STRING/INT/CODE: no outgoing object references) goes
// straight to FREE when its count hits zero. Any other cell becomes
// REFZERO and waits for ProcessRefZero to walk its children before it is
// handed back to the allocator.
//
// # The .interface skip
//
// When decrementing a non-internal cell's packed (data, interface) pairs,
// only the .data field of each pair is decremented; .interface fields are
// intentionally left alone. This asymmetry is deliberate and load-bearing;
// consult DESIGN.md before changing it.
//
// # Fatal conditions
//
// A refcount underflow (decrementing a cell already at zero) and any
// header read that fails structural validation are both assertion
// failures: they panic with a *apperr.AppError rather than returning an
// error a caller could plausibly recover from.
package refcount
