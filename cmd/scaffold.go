package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ZacxDev/mirrortex/scaffold"
)

var scaffoldFlags = []commandLineFlag{dryRunFlag}

// Scaffold returns the cobra command that creates the directory layout.
func Scaffold() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:   "scaffold [flags] [dir]",
			Short: "Create the grade and subject directory tree",
			Long: `Create one directory per grade and subject under the curriculum root, plus the
extracurricular directories, inside dir (default is the working directory).
Existing directories are left untouched, so it is safe to run repeatedly.

The layout comes from the "layout" dict of mirrortex.star when present.
`,
			Args: cobra.MaximumNArgs(1),
		}, scaffoldFlags,
		runScaffold,
	)
}

func runScaffold(ctx *Context, args []string) error {
	base := ""
	if len(args) == 1 {
		base = args[0]
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, "failed to retrieve the current working directory")
		}
		base = wd
	}

	s := scaffold.NewScaffolder(ctx.FS, ctx.Config.Layout)
	if ctx.Bool(dryRunFlag.name) {
		s.Plan(ctx, base)
		return nil
	}

	created, err := s.Create(ctx, base)
	if err != nil {
		return err
	}
	ctx.Log().Info().Msgf("Created %d directories under %s", len(created), base)
	return nil
}
