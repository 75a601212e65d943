// Package cmd implements the mirrortex command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCommand assembles mirrortex and its subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mirrortex",
		Short: "Build LaTeX trees into a mirrored output tree",
		Long: `mirrortex compiles every LaTeX source under a directory tree with an external
engine (xelatex by default) and places each PDF in an output tree that mirrors
the source layout. Files whose PDF is newer than the source are skipped.

It can also scaffold the directory layout the sources are kept in.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	initFlags(rootCmd.PersistentFlags(), globalFlags...)

	rootCmd.AddCommand(Build())
	rootCmd.AddCommand(Scaffold())
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure. SIGINT and
// SIGTERM cancel the running build.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
