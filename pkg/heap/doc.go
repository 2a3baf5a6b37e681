// Package heap wires the allocator, reference-count engine, mark-generation
// collector, and root registry into a single arena-backed object heap: a
// contiguous cell arena, either an in-process byte slice (Init) or
// a memory-mapped file (Open), with a hybrid eager-refcount plus
// stop-the-world mark-sweep reclamation strategy.
package heap
