package executor

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	mfs "github.com/ZacxDev/mirrortex/fs"
	"github.com/ZacxDev/mirrortex/logging"
	"github.com/ZacxDev/mirrortex/target"
)

// vcsDirs are never descended into during discovery.
var vcsDirs = []string{".git", ".hg", ".svn"}

type Options struct {
	// Root and Output must be absolute.
	Root        string
	Output      string
	Tool        string
	ArtifactExt string
	// Include selects sources by their slash separated path relative to
	// Root; Exclude drops files and whole directories. Both use doublestar
	// syntax.
	Include string
	Exclude []string
	// Timeout bounds a single tool run. Zero means no limit.
	Timeout   time.Duration
	TailLines int
	MaxErrors int
	// Force rebuilds regardless of timestamps.
	Force bool
	// DryRun reports what would be compiled without running the tool.
	DryRun bool
}

// Builder compiles source documents into a mirrored output tree, one file at
// a time.
type Builder struct {
	opts        Options
	fs          mfs.FileSystem
	cmdExecutor CommandExecutor
	statusMgr   StatusManager
	reporter    Reporter
}

func NewBuilder(opts Options, fs mfs.FileSystem, cmdExecutor CommandExecutor, statusMgr StatusManager, reporter Reporter) *Builder {
	if reporter == nil {
		reporter = LogReporter{}
	}
	return &Builder{
		opts:        opts,
		fs:          fs,
		cmdExecutor: cmdExecutor,
		statusMgr:   statusMgr,
		reporter:    reporter,
	}
}

var errStopWalk = errors.New("stop walk")

// Discover yields every source file below root in walk order. VCS metadata
// and the output root are skipped. The sequence can be ranged over again to
// walk the tree afresh; a walk error is yielded with an empty path.
func (b *Builder) Discover(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := b.fs.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield("", errors.Wrapf(err, "failed to walk %s", path)) {
					return errStopWalk
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if path == root {
					return nil
				}
				if slices.Contains(vcsDirs, d.Name()) || filepath.Clean(path) == filepath.Clean(b.opts.Output) {
					return fs.SkipDir
				}
				if b.excluded(rel) {
					return fs.SkipDir
				}
				return nil
			}

			if !b.included(rel) || b.excluded(rel) {
				return nil
			}
			if !yield(path, nil) {
				return errStopWalk
			}
			return nil
		})
		if err != nil && err != errStopWalk {
			yield("", err)
		}
	}
}

func (b *Builder) included(rel string) bool {
	ok, err := doublestar.Match(b.opts.Include, rel)
	return err == nil && ok
}

func (b *Builder) excluded(rel string) bool {
	for _, pattern := range b.opts.Exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// NeedsRebuild is false only when artifact exists and is strictly newer
// than source. Equal timestamps rebuild.
func (b *Builder) NeedsRebuild(source, artifact string) (bool, error) {
	artifactInfo, err := b.fs.Stat(artifact)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return true, errors.Wrapf(err, "failed to check artifact %s", artifact)
	}

	sourceInfo, err := b.fs.Stat(source)
	if err != nil {
		return true, errors.Wrapf(err, "failed to check source %s", source)
	}

	return !artifactInfo.ModTime().After(sourceInfo.ModTime()), nil
}

// mirror places source's directory, relative to Root, under Output. Files
// outside Root land directly in Output.
func (b *Builder) mirror(source string) (targetDir, artifact string) {
	rel, err := filepath.Rel(b.opts.Root, filepath.Dir(source))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = "."
	}
	targetDir = filepath.Join(b.opts.Output, rel)
	return targetDir, filepath.Join(targetDir, target.ArtifactName(source, b.opts.ArtifactExt))
}

// CompileArgs is the fixed, non-interactive command line for one file.
func CompileArgs(targetDir, source string) []string {
	return []string{"-interaction=nonstopmode", "-output-directory", targetDir, source}
}

// Compile runs the tool on source with its output going to targetDir. Tool
// failures of any kind come back as a Failed outcome; the returned error is
// reserved for failing to create targetDir, which ends the run.
func (b *Builder) Compile(ctx context.Context, source, targetDir string) (target.Outcome, error) {
	outcome := target.Outcome{
		Source:    source,
		TargetDir: targetDir,
		Artifact:  filepath.Join(targetDir, target.ArtifactName(source, b.opts.ArtifactExt)),
	}

	if err := b.fs.MkdirAll(targetDir, 0755); err != nil {
		return outcome, errors.Wrapf(err, "failed to create output directory %s", targetDir)
	}

	if err := b.track(source); err != nil {
		return outcome, err
	}

	start := time.Now()
	if err := b.statusMgr.UpdateStatus(source, target.StatusCompiling, start, time.Time{}); err != nil {
		return outcome, err
	}
	b.reporter.Started(ctx, source, targetDir)

	runCtx := ctx
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	logging.FromContext(ctx).Debug().
		Str("tool", b.opts.Tool).
		Strs("args", CompileArgs(targetDir, source)).
		Msg("invoking compiler")

	out, err := b.cmdExecutor.Execute(runCtx, b.opts.Tool, CompileArgs(targetDir, source)...)
	b.classify(runCtx, &outcome, decodeOutput(out), err)

	end := time.Now()
	outcome.Duration = end.Sub(start)
	if !outcome.OK() {
		b.statusMgr.MarkAsFailed(source)
	}
	if err := b.statusMgr.UpdateStatus(source, outcome.Status, time.Time{}, end); err != nil {
		return outcome, err
	}
	b.reporter.Finished(ctx, outcome)

	return outcome, nil
}

// track records source as Discovered unless it already is. A finished entry
// from an earlier call is dropped first, so a file can be processed again
// without resetting the whole run.
func (b *Builder) track(source string) error {
	if current, ok := b.statusMgr.Status(source); ok {
		if current.Status == target.StatusDiscovered {
			return nil
		}
		if current.Status.Terminal() {
			b.statusMgr.Forget(source)
		}
	}
	return b.statusMgr.UpdateStatus(source, target.StatusDiscovered, time.Time{}, time.Time{})
}

func (b *Builder) classify(runCtx context.Context, outcome *target.Outcome, text string, err error) {
	var coded interface{ ExitCode() int }

	switch {
	case err == nil:
		outcome.Status = target.StatusSucceeded
		return
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist):
		outcome.Err = errors.Wrap(ErrToolNotInstalled, b.opts.Tool)
		outcome.Diagnostics = []string{
			"Error: '" + b.opts.Tool + "' command not found. Please install MiKTeX or TeX Live.",
		}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		outcome.Err = errors.Wrapf(ErrToolTimeout, "%s after %s", b.opts.Tool, b.opts.Timeout)
		outcome.Diagnostics, outcome.TailOnly = extractDiagnostics(text, b.opts.MaxErrors, b.opts.TailLines)
	case runCtx.Err() == nil && errors.As(err, &coded):
		outcome.Err = &ToolExitError{Tool: b.opts.Tool, Code: coded.ExitCode()}
		outcome.Diagnostics, outcome.TailOnly = extractDiagnostics(text, b.opts.MaxErrors, b.opts.TailLines)
	default:
		outcome.Err = errors.Wrap(err, "unexpected error invoking "+b.opts.Tool)
		outcome.Diagnostics = []string{"An unexpected error occurred: " + err.Error()}
	}
	outcome.Status = target.StatusFailed
}

// ProcessFile decides whether source is up to date and compiles it if not.
// The outcome's OK method tells whether the file counts as processed.
func (b *Builder) ProcessFile(ctx context.Context, source string) (target.Outcome, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return target.Outcome{Source: source}, errors.Wrapf(err, "failed to resolve %s", source)
	}
	targetDir, artifact := b.mirror(abs)

	if err := b.track(abs); err != nil {
		return target.Outcome{Source: abs}, err
	}

	if !b.opts.Force {
		needs, err := b.NeedsRebuild(abs, artifact)
		if err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("file", abs).Msg("cannot compare timestamps, rebuilding")
		}
		if !needs {
			return b.finishWithoutTool(ctx, abs, targetDir, artifact, false)
		}
	}

	if b.opts.DryRun {
		return b.finishWithoutTool(ctx, abs, targetDir, artifact, true)
	}

	return b.Compile(ctx, abs, targetDir)
}

func (b *Builder) finishWithoutTool(ctx context.Context, source, targetDir, artifact string, planned bool) (target.Outcome, error) {
	outcome := target.Outcome{
		Source:    source,
		TargetDir: targetDir,
		Artifact:  artifact,
		Status:    target.StatusSkipped,
		Planned:   planned,
	}
	if err := b.statusMgr.UpdateStatus(source, outcome.Status, time.Time{}, time.Now()); err != nil {
		return outcome, err
	}
	b.reporter.Finished(ctx, outcome)
	return outcome, nil
}

// RunOne builds a single named file. The timestamp check still applies.
func (b *Builder) RunOne(ctx context.Context, path string) (target.Summary, error) {
	log := logging.FromContext(ctx)
	b.statusMgr.Reset()

	if _, err := b.fs.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return target.Summary{}, errors.Wrapf(ErrMissingInput, "%s", path)
		}
		return target.Summary{}, errors.Wrapf(err, "failed to check %s", path)
	}

	log.Info().Str("file", path).Msgf("Targeting single file: %s", path)

	outcome, err := b.ProcessFile(ctx, path)
	summary := b.statusMgr.Summary()
	if err != nil {
		return summary, err
	}

	if !outcome.OK() {
		log.Error().Msg("Single file build failed.")
		return summary, errors.Wrapf(ErrBuildFailed, "%s", outcome.Source)
	}

	log.Info().Msg("Single file build successful.")
	return summary, nil
}

// RunAll builds every source discovered under Root. Per file failures do
// not stop the walk, but any of them makes RunAll return ErrBuildFailed.
func (b *Builder) RunAll(ctx context.Context) (target.Summary, error) {
	log := logging.FromContext(ctx)
	b.statusMgr.Reset()

	log.Info().Msg("Starting build process...")
	log.Info().Msgf("Root: %s", b.opts.Root)
	log.Info().Msgf("Output: %s", b.opts.Output)

	for source, err := range b.Discover(b.opts.Root) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return b.statusMgr.Summary(), errors.Wrap(ctxErr, "build interrupted")
		}
		if err != nil {
			log.Warn().Err(err).Msg("skipping unreadable path")
			continue
		}
		if _, err := b.ProcessFile(ctx, source); err != nil {
			return b.statusMgr.Summary(), err
		}
	}

	summary := b.statusMgr.Summary()
	log.Info().Msg(strings.Repeat("-", 30))
	log.Info().Msgf("Build complete. Found %d source files.", summary.Discovered)
	log.Info().Msgf("Successfully processed: %d/%d", summary.Processed(), summary.Discovered)

	if summary.Failed > 0 {
		return summary, errors.Wrapf(ErrBuildFailed, "%d of %d files failed", summary.Failed, summary.Discovered)
	}
	return summary, nil
}
