package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chernykhds/phantomuserland/internal/cellfmt"
	"github.com/chernykhds/phantomuserland/internal/dirty"
	"github.com/chernykhds/phantomuserland/pkg/heap"
)

// openExisting opens an already-initialized heap file at its current size,
// so callers other than "init" never truncate it out from under themselves.
func openExisting(path string) (*heap.Heap, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return heap.Open(path, fi.Size(), heapConfig())
}

var (
	allocDataSize int
	allocString   string
)

func init() {
	cmd := newAllocCmd()
	cmd.Flags().IntVar(&allocDataSize, "data", 64, "requested data area size in bytes")
	cmd.Flags().StringVar(&allocString, "string", "", "allocate a STRING leaf cell holding this text instead of a raw cell")
	rootCmd.AddCommand(cmd)
}

func newAllocCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alloc <path>",
		Short: "Allocate one cell in an existing heap file",
		Long: `alloc opens path (already initialized via "heapctl init"), allocates
a single cell, reports its offset, and flushes the change back to disk.
By default the cell is a raw INT leaf whose data area is at least --data
bytes; with --string the cell is a STRING leaf holding the given text,
encoded as UTF-16LE, and "heapctl dump" decodes it back.

Example:
  heapctl alloc heap.bin --data 128
  heapctl alloc heap.bin --string "kernel environment"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlloc(args[0])
		},
	}
}

func runAlloc(path string) error {
	h, err := openExisting(path)
	if err != nil {
		return fmt.Errorf("alloc: %w", err)
	}
	defer h.Close()

	var ref cellfmt.CellRef
	if allocString != "" {
		ref, err = allocStringCell(h, allocString)
	} else {
		ref, err = allocRawCell(h, allocDataSize)
	}
	if err != nil {
		return fmt.Errorf("alloc: %w", err)
	}

	if err := h.Flush(context.Background(), dirty.FlushFull); err != nil {
		return fmt.Errorf("alloc: flush: %w", err)
	}

	if jsonOut {
		return printJSON(map[string]any{"ref": uint32(ref)})
	}
	printInfo("allocated cell at offset %d\n", ref)
	return nil
}

func allocRawCell(h *heap.Heap, dataSize int) (cellfmt.CellRef, error) {
	ref, err := h.Allocate(dataSize)
	if err != nil {
		return cellfmt.NullRef, err
	}
	return ref, markLeaf(h, ref, cellfmt.FlagInt)
}

// allocStringCell boxes text the way a class library would: a STRING leaf
// cell whose payload is the UTF-16LE encoding of s, with DataSize trimmed
// to the encoded length so a reader never decodes alignment padding.
func allocStringCell(h *heap.Heap, s string) (cellfmt.CellRef, error) {
	encoded, err := cellfmt.EncodeString(s)
	if err != nil {
		return cellfmt.NullRef, err
	}
	ref, err := h.Allocate(len(encoded))
	if err != nil {
		return cellfmt.NullRef, err
	}

	hdr, err := cellfmt.ReadHeader(h.Arena(), ref)
	if err != nil {
		return cellfmt.NullRef, err
	}
	hdr.Flags |= cellfmt.FlagString
	hdr.DataSize = uint32(len(encoded))
	if err := cellfmt.WriteHeader(h.Arena(), ref, hdr); err != nil {
		return cellfmt.NullRef, err
	}

	data, err := cellfmt.Data(h.Arena(), ref, hdr)
	if err != nil {
		return cellfmt.NullRef, err
	}
	copy(data, encoded)
	return ref, nil
}
