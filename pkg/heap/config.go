package heap

import (
	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/internal/gc"
	"github.com/chernykhds/phantomuserland/internal/gcroots"
	"github.com/chernykhds/phantomuserland/pkg/logging"
)

// ClassTable is the external contract a VM object model supplies: for any internal, non-leaf cell, it
// enumerates the outgoing references found in that cell's class-specific
// data layout. The method shape is identical to internal/refcount's and
// internal/gc's own ClassIterator interfaces (both alias their
// ChildVisitor parameter to cellfmt.ChildVisitor for exactly this reason),
// so a single ClassTable value can be handed to both the refcount engine
// and the collector without an adapter type.
type ClassTable interface {
	IterateChildren(arena []byte, classData, classIface cellfmt.CellRef, data []byte, visit cellfmt.ChildVisitor) error
}

// noopMutatorSupervisor is used when a caller has no external thread
// scheduler to pause — appropriate for single-goroutine use of a Heap,
// where "stop the mutators" is already true by construction.
type noopMutatorSupervisor struct{}

func (noopMutatorSupervisor) StopMutators()   {}
func (noopMutatorSupervisor) ResumeMutators() {}

// Config configures a Heap at construction time: a plain struct of named
// fields rather than functional options, since every field here is a
// fixed sizing/wiring decision made once at startup, not a runtime
// toggle.
type Config struct {
	// ClassTable is the external iterator over non-leaf internal cells
	//. May be nil if the heap only ever holds packed-pair cells.
	ClassTable ClassTable

	// StaticRoots supplies the fixed, always-marked root set.
	// May be nil if the heap has no static roots.
	StaticRoots gcroots.StaticRootsProvider

	// Supervisor pauses and resumes mutator threads around collector phase
	// 1. Defaults to a no-op when nil, which
	// is correct for single-goroutine callers.
	Supervisor gc.MutatorSupervisor

	// MarkAreaCapacity bounds the collector's phase-1 work list; 0 uses gc.DefaultMarkAreaCapacity.
	MarkAreaCapacity int

	// DynamicRootCapacity bounds the dynamic root registry; 0 uses gcroots.DefaultCapacity.
	DynamicRootCapacity int

	// Log receives diagnostic messages from the allocator, refcount
	// engine, and collector. Defaults to logging.NullLogger when nil.
	Log logging.Logger
}

// DefaultConfig is the configuration used when a zero-value Config is
// passed to Init/Open: no class table, no static roots, a no-op
// supervisor, default capacities, no logging.
var DefaultConfig = Config{}
