package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ZacxDev/mirrortex/config"
	"github.com/ZacxDev/mirrortex/executor"
	"github.com/ZacxDev/mirrortex/target"
	"github.com/ZacxDev/mirrortex/ui"
)

// uiLogFile receives log output while the status view owns the terminal.
const uiLogFile = "mirrortex.log"

var buildFlags = []commandLineFlag{
	rootFlag, outputFlag, toolFlag, timeoutFlag, includeFlag, excludeFlag, forceFlag, dryRunFlag, uiFlag,
}

// Build returns the cobra command that compiles sources.
func Build() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "build [flags] [file]",
			Short: "Compile every out of date source, or a single file",
			Long: `Walk the source tree and compile each source whose PDF is missing or not newer
than the source. Each PDF lands in the output tree under the same relative
directory as its source.

Given a file, only that file is considered. The timestamp check still applies;
use --force to rebuild regardless.

Example:
  mirrortex build --root notes --timeout 2m
  mirrortex build notes/高一/数学/limits.tex
`,
			Args: cobra.MaximumNArgs(1),
		}, buildFlags,
		runBuild,
	)
}

func runBuild(ctx *Context, args []string) error {
	cfg := ctx.Config
	log := ctx.Log()

	if !config.IsKnownCompiler(cfg.Tool) {
		log.Warn().Msgf("%s is not a known LaTeX engine; passing it the usual flags anyway", cfg.Tool)
	}

	opts := executor.Options{
		Root:        cfg.Root,
		Output:      cfg.Output,
		Tool:        cfg.Tool,
		ArtifactExt: cfg.ArtifactExt,
		Include:     cfg.Include,
		Exclude:     cfg.Exclude,
		Timeout:     cfg.Timeout,
		TailLines:   cfg.TailLines,
		MaxErrors:   cfg.MaxErrors,
		Force:       ctx.Bool(forceFlag.name),
		DryRun:      ctx.Bool(dryRunFlag.name),
	}

	run := func(runCtx context.Context, reporter executor.Reporter) (target.Summary, error) {
		builder := executor.NewBuilder(opts, ctx.FS, executor.RealCommandExecutor{}, executor.NewStatusManager(), reporter)
		if len(args) == 1 {
			return builder.RunOne(runCtx, args[0])
		}
		return builder.RunAll(runCtx)
	}

	var err error
	if ctx.Bool(uiFlag.name) {
		err = runWithStatusView(ctx, run)
	} else {
		_, err = run(ctx, nil)
	}

	if errors.Is(err, executor.ErrMissingInput) {
		ctx.Log().Error().Msgf("Error: File not found: %s", args[0])
	}
	return err
}

func runWithStatusView(ctx *Context, run func(context.Context, executor.Reporter) (target.Summary, error)) error {
	f, err := tea.LogToFile(uiLogFile, "mirrortex")
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	defer f.Close()

	stderr := ctx.Command.ErrOrStderr()
	ctx.LogTo(f)
	defer ctx.LogTo(stderr)

	summary, err := ui.Run(ctx, ctx.Config.Root, func(runCtx context.Context, reporter *ui.Reporter) (target.Summary, error) {
		return run(runCtx, reporter)
	})
	fmt.Fprint(ctx.Command.OutOrStdout(), ui.RenderSummary(summary))
	return err
}
