// Package main provides locextract, a CLI that runs saved assistant replies
// through the location extraction pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

type globalFlags struct {
	seed    uint64
	verbose bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:           "locextract",
		Short:         "Replay assistant replies through location extraction",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Uint64Var(&flags.seed, "seed", 1, "Seed for fallback ratings and review counts (0 = random)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log pipeline decisions to stderr")

	rootCmd.AddCommand(
		newReplayCmd(&flags),
		newExtractCmd(&flags),
	)
	return rootCmd
}
