// Package dirty provides page-level dirty tracking for heap arena
// modifications.
//
// # Overview
//
// This package tracks which OS-page-sized ranges of the arena have been
// touched by allocation, reference-count mutation, or collection, so a
// caller backing the heap with internal/mmfile can flush only the pages
// that actually changed on a checkpoint, instead of rewriting the whole
// arena.
//
// # Usage
//
// Creating a tracker:
//
//	tracker := dirty.NewTracker(arenaFile)
//
// Marking modifications:
//
//	// After writing a cell header at offset 0x5000
//	tracker.Add(0x5000, 128)
//
// Flushing dirty ranges:
//
//	if err := tracker.FlushDataOnly(ctx); err != nil {
//	    // handle error
//	}
//
// # Page-Level Granularity
//
// The tracker operates at OS page boundaries (4KB by default):
//   - Ranges are rounded out to page boundaries before flushing
//   - A 1-byte change marks the entire page dirty
//   - Consecutive dirty pages are coalesced into single ranges before the
//     platform flush call
//
// # Thread Safety
//
// Tracker instances are not thread-safe. Callers must synchronize access
// externally — in practice the same alloc_mutex that already serialises
// the allocator and collector.
package dirty
