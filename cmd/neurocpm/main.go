// Command neurocpm runs connectome-based predictive modelling on CSV inputs
// and synthesises fMRI subjects from a fitted whole-brain model.
//
// Usage:
//
//	neurocpm predict --features edges.csv --response scores.csv --out result.json
//	neurocpm synthesize --fc fc.csv --hcp-dir data/hcp100 --n 20 --seconds 300 --out-dir synth
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// shutdownSignals cancel in-flight folds and fits.
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line args and returns the process exit code.
// The root command silences cobra's own error output, so every failure is
// reported here on stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "neurocpm:", err)
		return 1
	}
	return 0
}
