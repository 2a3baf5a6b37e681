// Package alloc implements the heap's rover-based first-fit allocator: the
// only component that creates ALLOCATED cells and the only one that splits
// or coalesces FREE ones.
//
// # Overview
//
// The allocator searches a fixed-size arena starting from a rover cursor
// that remembers where the previous allocation ended. It never grows the
// arena — exhaustion triggers one collection pass via the Collector
// callback, and a second failed search after that is terminal
// (apperr.ErrOutOfMemory).
//
// # Algorithm
//
//   - ALLOCATED cells are skipped.
//   - REFZERO cells are handed to the RefZeroProcessor, which frees them in
//     place; the search then re-examines the same offset as FREE.
//   - FREE cells are coalesced forward with any immediately following FREE
//     cell before being measured against the request. A fit is split,
//     leaving a new FREE fragment behind unless the surplus is smaller than
//     MinFragmentSize, in which case it is absorbed into the allocation.
//
// # Usage
//
//	a := alloc.New(arena, refzeroProcessor, collector, logging.Global())
//	ref, err := a.Allocate(128)
//
// # Thread Safety
//
// Allocator instances serialize Allocate calls through an internal mutex.
// The mutex is released while the collector runs so a stop-the-world pass
// can make progress without deadlocking against the allocator.
package alloc
