// Command heapctl inspects and exercises a persistent object heap backing
// file: initializing an arena, allocating and stress-testing cells, running
// a collection cycle, managing dynamic roots, and checking structural
// integrity.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chernykhds/phantomuserland/pkg/heap"
	"github.com/chernykhds/phantomuserland/pkg/logging"
)

var (
	verbose bool
	quiet   bool
	jsonOut bool

	logger logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "heapctl",
	Short: "Inspect and exercise a persistent object heap file",
	Long: `heapctl operates on the arena file backing a persistent object heap:
initializing it, allocating and stress-testing cells against it, running a
mark-generation collection cycle, managing dynamic roots, and checking
structural integrity via memcheck.`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Setup logger based on verbosity flags
		logLevel := logging.LevelInfo
		if verbose {
			logLevel = logging.LevelDebug
		}
		if quiet {
			logLevel = logging.LevelError
		}
		logger = logging.NewDefaultLogger(logLevel, os.Stderr)
		logging.SetGlobal(logger)
		return nil
	},
}

// heapConfig is the heap.Config every subcommand opens its heap with:
// the shared logger, no class table, no static roots (heapctl operates on
// leaf cells only).
func heapConfig() heap.Config {
	return heap.Config{Log: logger}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func main() {
	execute()
}
