package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/internal/dirty"
	"github.com/chernykhds/phantomuserland/pkg/heap"
)

var (
	stressCount int
	stressSize  int
	stressFreeN int
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressCount, "count", 1000, "number of cells to allocate")
	cmd.Flags().IntVar(&stressSize, "size", 64, "data area size of each cell")
	cmd.Flags().IntVar(&stressFreeN, "free-every", 2, "decrement one out of every N allocated cells (0 disables)")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress <path>",
		Short: "Allocate many cells and optionally free a fraction of them",
		Long: `stress allocates --count cells of --size data bytes each against path,
then (unless --free-every is 0) decrements the refcount of every Nth one,
and reports a memcheck afterward. Useful for exercising the allocator's
rover wraparound and coalescing path, and the collector under load.

Example:
  heapctl stress heap.bin --count 1000 --size 64 --free-every 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(args[0])
		},
	}
}

func runStress(path string) error {
	h, err := openExisting(path)
	if err != nil {
		return fmt.Errorf("stress: %w", err)
	}
	defer h.Close()

	refs := make([]uint32, 0, stressCount)
	for i := 0; i < stressCount; i++ {
		ref, err := h.Allocate(stressSize)
		if err != nil {
			return fmt.Errorf("stress: allocate %d/%d: %w", i, stressCount, err)
		}
		if err := markLeaf(h, ref, cellfmt.FlagInt); err != nil {
			return fmt.Errorf("stress: cell %d: %w", ref, err)
		}
		refs = append(refs, uint32(ref))
		if verbose && i%100 == 0 {
			printVerbose("allocated %d/%d\n", i, stressCount)
		}
	}

	freed := 0
	if stressFreeN > 0 {
		for i, ref := range refs {
			if i%stressFreeN != 0 {
				continue
			}
			if err := h.DecRef(cellfmt.CellRef(ref)); err != nil {
				return fmt.Errorf("stress: decref %d: %w", ref, err)
			}
			freed++
		}
	}

	report := h.Memcheck()
	if err := h.Flush(context.Background(), dirty.FlushFull); err != nil {
		return fmt.Errorf("stress: flush: %w", err)
	}

	result := struct {
		Allocated int                `json:"allocated"`
		Freed     int                `json:"freed"`
		Memcheck  heap.MemcheckReport `json:"memcheck"`
	}{Allocated: stressCount, Freed: freed, Memcheck: report}

	if jsonOut {
		return printJSON(result)
	}
	printInfo("allocated=%d freed=%d objects=%d used=%d free=%d ok=%t\n",
		result.Allocated, result.Freed, report.Objects, report.UsedBytes, report.FreeBytes, report.OK)
	return nil
}
