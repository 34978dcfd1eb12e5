// Package main implements spec.md §6's "[NEW] CLI surface": the `rlm`
// binary's run/replay/serve subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rlm",
	Short: "Recursive long-context model runtime",
	Long: `rlm drives a sandboxed Python-subset REPL with an LLM in the loop to
answer queries over large text contexts, recursing into sub-tasks with a
cheaper model when a context is too large to reason over directly.`,
}

func init() {
	rootCmd.AddCommand(runCmd, replayCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a top-level error to spec.md §6's exit code table:
// 0 success, 2 configuration/transport failure, 1 reserved for replay
// mismatch.
func exitCodeFor(err error) int {
	if ce, ok := err.(*cliError); ok {
		return ce.code
	}
	return 2
}

// cliError carries an explicit exit code alongside its message, for the
// subcommands that need to distinguish spec §6's exit code 1 (replay
// mismatch) from the general 2 (configuration/transport failure).
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func replayMismatch(err error) error { return &cliError{code: 1, err: err} }
