package gc

import "github.com/chernykhds/phantomuserland/internal/cellfmt"

// conservativeRoots treats every aligned word of region as a candidate
// CellRef into arena. A candidate survives if it falls within arena bounds,
// decodes as a valid header, and a back-check confirms it is a true cell
// boundary rather than a coincidental pattern inside some other cell's
// payload: walking backward from offset 0 by repeatedly following ExactSize
// must land exactly on the candidate. False positives are harmless (an
// extra root only delays a future collection); false negatives are fatal,
// so ambiguous candidates are kept rather than discarded.
func conservativeRoots(arena []byte, region []byte) []cellfmt.CellRef {
	var roots []cellfmt.CellRef
	boundaries := cellBoundaries(arena)

	for i := 0; i+cellfmt.CellAlignment <= len(region); i += cellfmt.CellAlignment {
		candidate := cellfmt.CellRef(cellfmt.ReadU32(region, i))
		if int(candidate) >= len(arena) {
			continue
		}
		if _, err := cellfmt.ReadHeader(arena, candidate); err != nil {
			continue
		}
		if !boundaries[candidate] {
			continue
		}
		roots = append(roots, candidate)
	}
	return roots
}

// cellBoundaries walks the arena once from offset 0 and records every
// offset that is a genuine cell start, giving conservativeRoots an O(1)
// back-check instead of re-walking from the start for every candidate.
func cellBoundaries(arena []byte) map[cellfmt.CellRef]bool {
	boundaries := make(map[cellfmt.CellRef]bool)
	_ = cellfmt.Walk(arena, func(off cellfmt.CellRef, h cellfmt.Header) error {
		boundaries[off] = true
		return nil
	})
	return boundaries
}
