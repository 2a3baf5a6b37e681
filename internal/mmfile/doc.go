// Package mmfile provides platform-specific helpers for memory-mapping the
// heap's arena backing file, making the arena a durable object store:
// a file whose bytes ARE the arena, mapped read-write so
// mutations the allocator, refcount engine, and collector make are
// visible to whatever later flushes the dirty ranges back (internal/dirty)
// and survive a process restart.
package mmfile
