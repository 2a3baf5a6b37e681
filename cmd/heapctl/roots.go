package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/internal/dirty"
	"github.com/chernykhds/phantomuserland/pkg/heap"
)

var rootsDataSize int

func init() {
	cmd := newRootsCmd()
	cmd.Flags().IntVar(&rootsDataSize, "data", 64, "data area size of the demonstration cell")
	rootCmd.AddCommand(cmd)
}

func newRootsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roots <path>",
		Short: "Demonstrate the dynamic root registry surviving a collection",
		Long: `roots allocates a cell, registers it as a dynamic root, drops its only
other reference, and runs a collection to show it survives — then removes
the root and collects again to show it is reclaimed.

The dynamic root registry is process-local: it has no on-disk
representation, so this command only demonstrates the add/collect/remove/
collect sequence within a single invocation rather than persisting roots
across separate heapctl runs.

Example:
  heapctl roots heap.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoots(args[0])
		},
	}
}

func runRoots(path string) error {
	h, err := openExisting(path)
	if err != nil {
		return fmt.Errorf("roots: %w", err)
	}
	defer h.Close()

	ref, err := h.Allocate(rootsDataSize)
	if err != nil {
		return fmt.Errorf("roots: %w", err)
	}
	if err := markLeaf(h, ref, cellfmt.FlagInt); err != nil {
		return fmt.Errorf("roots: %w", err)
	}

	h.AddRoot(ref)
	if err := h.DecRef(ref); err != nil {
		return fmt.Errorf("roots: %w", err)
	}

	if err := h.Collect(nil); err != nil {
		return fmt.Errorf("roots: %w", err)
	}
	printInfo("after adding root and collecting: cell at %d is %s\n", ref, cellState(h, ref))

	if err := h.RemoveRoot(ref); err != nil {
		return fmt.Errorf("roots: %w", err)
	}
	if err := h.Collect(nil); err != nil {
		return fmt.Errorf("roots: %w", err)
	}
	printInfo("after removing root and collecting: cell at %d is %s\n", ref, cellState(h, ref))

	return h.Flush(context.Background(), dirty.FlushFull)
}

// markLeaf stamps ref with a leaf classification flag: its payload is raw
// data, never walked for outgoing references. heapctl has no class library
// attached, so every cell it creates on its own behalf is a leaf.
func markLeaf(h *heap.Heap, ref cellfmt.CellRef, flag cellfmt.Flags) error {
	hdr, err := cellfmt.ReadHeader(h.Arena(), ref)
	if err != nil {
		return err
	}
	hdr.Flags |= flag
	return cellfmt.WriteHeader(h.Arena(), ref, hdr)
}

func cellState(h *heap.Heap, ref cellfmt.CellRef) string {
	hdr, err := cellfmt.ReadHeader(h.Arena(), ref)
	if err != nil {
		return "UNREADABLE"
	}
	return hdr.AllocState.String()
}
