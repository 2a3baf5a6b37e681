package heap

import (
	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/pkg/apperr"
)

// MemcheckReport is the result of a Memcheck walk.
type MemcheckReport struct {
	// Objects is the number of ALLOCATED or REFZERO cells found.
	Objects int
	// UsedBytes is the total exact_size of every ALLOCATED/REFZERO cell.
	UsedBytes int
	// FreeBytes is the total exact_size of every FREE cell.
	FreeBytes int
	// OK is true iff the walk reached end exactly and every header carried
	// the correct start marker. A false OK is reported, never panicked:
	// memcheck is the one boot-time operation that tolerates corruption.
	OK bool
}

// Memcheck walks the arena cell by cell, tallying object count, used
// bytes, and free bytes. It is the boot-time / operator-invoked
// consistency check: unlike every other core operation, a structural
// failure here is reported back to the caller rather than treated as
// fatal.
func (h *Heap) Memcheck() MemcheckReport {
	report := MemcheckReport{}

	err := cellfmt.Walk(h.arena, func(off cellfmt.CellRef, hdr cellfmt.Header) error {
		switch {
		case cellfmt.IsFreeObject(hdr):
			report.FreeBytes += int(hdr.ExactSize)
		case cellfmt.IsObject(hdr):
			report.Objects++
			report.UsedBytes += int(hdr.ExactSize)
		}
		return nil
	})
	if err != nil {
		h.log.Warn("memcheck: walk failed: %v", err)
		return report
	}

	if report.UsedBytes+report.FreeBytes != len(h.arena) {
		h.log.Warn("memcheck: tiled %d bytes, arena is %d bytes", report.UsedBytes+report.FreeBytes, len(h.arena))
		return report
	}

	report.OK = true
	return report
}

// MemcheckOrError is Memcheck wrapped for callers (e.g. cmd/heapctl) that
// want the CodeMemcheckFailed AppError instead of inspecting OK directly.
func (h *Heap) MemcheckOrError() (MemcheckReport, error) {
	report := h.Memcheck()
	if !report.OK {
		return report, apperr.ErrMemcheckFailed
	}
	return report, nil
}
