package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chernykhds/phantomuserland/pkg/heap"
)

var initSize int64

func init() {
	cmd := newInitCmd()
	cmd.Flags().Int64Var(&initSize, "size", 1<<20, "arena size in bytes")
	rootCmd.AddCommand(cmd)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <path>",
		Short: "Create (or re-lay-out) a heap arena file",
		Long: `init memory-maps path, creating it if necessary, sizing it to --size
bytes, and laying it out as a single FREE cell spanning the whole arena.

Example:
  heapctl init heap.bin --size 4194304`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0])
		},
	}
}

func runInit(path string) error {
	printVerbose("mapping %s at %d bytes\n", path, initSize)
	h, err := heap.Open(path, initSize, heapConfig())
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer h.Close()

	report := h.Memcheck()
	if jsonOut {
		return printJSON(report)
	}
	printInfo("initialized %s: %d bytes, %d objects\n", path, initSize, report.Objects)
	return nil
}
