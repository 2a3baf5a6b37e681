package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newMemcheckCmd())
}

func newMemcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "memcheck <path>",
		Short: "Walk a heap file reporting object count and used/free bytes",
		Long: `memcheck walks every cell from the start of the arena, tallying object
count, used bytes, and free bytes. It exits non-zero, without panicking, if
the walk doesn't tile the arena exactly or any header carries a bad start
marker.

Example:
  heapctl memcheck heap.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemcheck(args[0])
		},
	}
}

func runMemcheck(path string) error {
	h, err := openExisting(path)
	if err != nil {
		return fmt.Errorf("memcheck: %w", err)
	}
	defer h.Close()

	report := h.Memcheck()
	if jsonOut {
		return printJSON(report)
	}
	printInfo("objects=%d used=%d free=%d ok=%t\n", report.Objects, report.UsedBytes, report.FreeBytes, report.OK)
	if !report.OK {
		return fmt.Errorf("memcheck: heap failed consistency check")
	}
	return nil
}
