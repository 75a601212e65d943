package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacxDev/mirrortex/fs/mock"
	"github.com/ZacxDev/mirrortex/target"
)

var (
	past  = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	later = past.Add(time.Hour)
)

func testOptions() Options {
	return Options{
		Root:        "/src",
		Output:      "/src/output",
		Tool:        "xelatex",
		ArtifactExt: ".pdf",
		Include:     "**/*.tex",
		TailLines:   10,
		MaxErrors:   5,
	}
}

func newTestBuilder(opts Options) (*Builder, *mock.MockFileSystem, *MockCommandExecutor, *MockReporter) {
	fs := mock.NewMockFileSystem()
	cmdExecutor := &MockCommandExecutor{}
	reporter := &MockReporter{}
	return NewBuilder(opts, fs, cmdExecutor, NewStatusManager(), reporter), fs, cmdExecutor, reporter
}

// producesArtifact makes the mocked tool write <dir>/<name>.pdf at mtime.
func producesArtifact(fs *mock.MockFileSystem, mtime time.Time) func(context.Context, string, ...string) ([]byte, error) {
	return func(ctx context.Context, name string, arg ...string) ([]byte, error) {
		dir, source := arg[2], arg[3]
		fs.Touch(filepath.Join(dir, target.ArtifactName(source, ".pdf")), mtime)
		return []byte("Output written on " + source), nil
	}
}

func collect(t *testing.T, b *Builder, root string) []string {
	t.Helper()
	var found []string
	for path, err := range b.Discover(root) {
		require.NoError(t, err)
		found = append(found, path)
	}
	return found
}

func TestNewBuilder(t *testing.T) {
	fs := mock.NewMockFileSystem()
	cmdExecutor := &MockCommandExecutor{}
	statusMgr := NewStatusManager()

	b := NewBuilder(testOptions(), fs, cmdExecutor, statusMgr, nil)

	require.NotNil(t, b)
	assert.Equal(t, fs, b.fs)
	assert.Equal(t, cmdExecutor, b.cmdExecutor)
	assert.Equal(t, statusMgr, b.statusMgr)
	assert.IsType(t, LogReporter{}, b.reporter)
}

func TestBuilder_Discover(t *testing.T) {
	opts := testOptions()
	opts.Exclude = []string{"drafts/**"}
	b, fs, _, _ := newTestBuilder(opts)

	fs.AddFile("/src/a/x.tex", nil, past)
	fs.AddFile("/src/a/b/y.tex", nil, past)
	fs.AddFile("/src/a/notes.txt", nil, past)
	fs.AddFile("/src/top.tex", nil, past)
	fs.AddFile("/src/.git/hooks/hook.tex", nil, past)
	fs.AddFile("/src/output/a/x.tex", nil, past)
	fs.AddFile("/src/drafts/wip.tex", nil, past)

	want := []string{"/src/a/b/y.tex", "/src/a/x.tex", "/src/top.tex"}
	assert.Equal(t, want, collect(t, b, "/src"))

	// Ranging again walks the tree afresh.
	fs.AddFile("/src/z.tex", nil, past)
	assert.Equal(t, append(want, "/src/z.tex"), collect(t, b, "/src"))
}

func TestBuilder_DiscoverStopsEarly(t *testing.T) {
	b, fs, _, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/a.tex", nil, past)
	fs.AddFile("/src/b.tex", nil, past)
	fs.AddFile("/src/c.tex", nil, past)

	var seen []string
	for path, err := range b.Discover("/src") {
		require.NoError(t, err)
		seen = append(seen, path)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"/src/a.tex", "/src/b.tex"}, seen)
}

func TestBuilder_DiscoverMissingRoot(t *testing.T) {
	b, _, _, _ := newTestBuilder(testOptions())

	var errs []error
	for path, err := range b.Discover("/missing") {
		assert.Empty(t, path)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], os.ErrNotExist))
}

func TestBuilder_NeedsRebuild(t *testing.T) {
	tests := []struct {
		name     string
		artifact *time.Time
		want     bool
	}{
		{"no artifact", nil, true},
		{"artifact newer", &later, false},
		{"equal timestamps", &past, true},
		{"artifact older", ptr(past.Add(-time.Minute)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, fs, _, _ := newTestBuilder(testOptions())
			fs.AddFile("/src/x.tex", nil, past)
			if tt.artifact != nil {
				fs.AddFile("/src/output/x.pdf", nil, *tt.artifact)
			}

			got, err := b.NeedsRebuild("/src/x.tex", "/src/output/x.pdf")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuilder_NeedsRebuildStatError(t *testing.T) {
	b, fs, _, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/x.tex", nil, past)
	fs.AddFile("/src/output/x.pdf", nil, later)
	fs.Errors["stat:/src/output/x.pdf"] = os.ErrPermission

	got, err := b.NeedsRebuild("/src/x.tex", "/src/output/x.pdf")
	assert.True(t, got)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func ptr(t time.Time) *time.Time { return &t }

func TestBuilder_CompileSuccess(t *testing.T) {
	b, fs, cmdExecutor, reporter := newTestBuilder(testOptions())
	fs.AddFile("/src/a/x.tex", nil, past)
	cmdExecutor.ExecuteFunc = producesArtifact(fs, later)

	outcome, err := b.Compile(context.Background(), "/src/a/x.tex", "/src/output/a")
	require.NoError(t, err)

	assert.Equal(t, target.StatusSucceeded, outcome.Status)
	assert.Equal(t, "/src/output/a/x.pdf", outcome.Artifact)
	assert.Nil(t, outcome.Err)
	assert.Equal(t, []string{"/src/output/a"}, fs.MkdirCalls)
	assert.Equal(t, [][]string{{
		"xelatex", "-interaction=nonstopmode", "-output-directory", "/src/output/a", "/src/a/x.tex",
	}}, cmdExecutor.Calls)
	assert.Equal(t, []string{"/src/a/x.tex"}, reporter.StartedSources)
	require.Len(t, reporter.Outcomes, 1)

	status, ok := b.statusMgr.Status("/src/a/x.tex")
	require.True(t, ok)
	assert.Equal(t, target.StatusSucceeded, status.Status)
	assert.False(t, status.StartTime.IsZero())
	assert.False(t, status.EndTime.IsZero())
}

func TestBuilder_CompileFailures(t *testing.T) {
	errorLog := strings.Join([]string{
		"This is XeTeX",
		"! Undefined control sequence.",
		"l.3 \\foo",
		"! Missing $ inserted.",
		"! Emergency stop.",
		"! Extra }, or forgotten $.",
		"! Too many }'s.",
		"! Sixth error.",
		"No pages of output.",
	}, "\n") + "\n"

	var tailLog []string
	for i := 1; i <= 15; i++ {
		tailLog = append(tailLog, "line "+strings.Repeat("x", i))
	}

	tests := []struct {
		name      string
		out       string
		err       error
		wantErr   error
		wantDiags []string
		wantTail  bool
	}{
		{
			name:    "error lines",
			out:     errorLog,
			err:     exitError{code: 1},
			wantErr: &ToolExitError{Tool: "xelatex", Code: 1},
			wantDiags: []string{
				"! Undefined control sequence.",
				"! Missing $ inserted.",
				"! Emergency stop.",
				"! Extra }, or forgotten $.",
				"! Too many }'s.",
			},
		},
		{
			name:      "tail fallback",
			out:       strings.Join(tailLog, "\r\n") + "\r\n",
			err:       exitError{code: 2},
			wantErr:   &ToolExitError{Tool: "xelatex", Code: 2},
			wantDiags: tailLog[5:],
			wantTail:  true,
		},
		{
			name:      "tool missing",
			err:       &exec.Error{Name: "xelatex", Err: exec.ErrNotFound},
			wantErr:   ErrToolNotInstalled,
			wantDiags: []string{"Error: 'xelatex' command not found. Please install MiKTeX or TeX Live."},
		},
		{
			name:      "unexpected",
			err:       errors.New("fork/exec: resource temporarily unavailable"),
			wantDiags: []string{"An unexpected error occurred: fork/exec: resource temporarily unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
			fs.AddFile("/src/x.tex", nil, past)
			cmdExecutor.ExecuteFunc = func(ctx context.Context, name string, arg ...string) ([]byte, error) {
				return []byte(tt.out), tt.err
			}

			outcome, err := b.Compile(context.Background(), "/src/x.tex", "/src/output")
			require.NoError(t, err)

			assert.Equal(t, target.StatusFailed, outcome.Status)
			assert.False(t, outcome.OK())
			require.Error(t, outcome.Err)
			switch want := tt.wantErr.(type) {
			case nil:
				assert.Contains(t, outcome.Err.Error(), "unexpected error invoking xelatex")
			case *ToolExitError:
				var exitErr *ToolExitError
				require.True(t, errors.As(outcome.Err, &exitErr))
				assert.Equal(t, want, exitErr)
			default:
				assert.ErrorIs(t, outcome.Err, want)
			}
			assert.Equal(t, tt.wantDiags, outcome.Diagnostics)
			assert.Equal(t, tt.wantTail, outcome.TailOnly)
			assert.Equal(t, 1, b.statusMgr.FailedCount())
		})
	}
}

func TestBuilder_CompileTimeout(t *testing.T) {
	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	b, fs, cmdExecutor, _ := newTestBuilder(opts)
	fs.AddFile("/src/x.tex", nil, past)
	cmdExecutor.ExecuteFunc = func(ctx context.Context, name string, arg ...string) ([]byte, error) {
		<-ctx.Done()
		return []byte("(./x.tex\n"), exitError{code: -1}
	}

	outcome, err := b.Compile(context.Background(), "/src/x.tex", "/src/output")
	require.NoError(t, err)
	assert.Equal(t, target.StatusFailed, outcome.Status)
	assert.ErrorIs(t, outcome.Err, ErrToolTimeout)
	assert.Equal(t, []string{"(./x.tex"}, outcome.Diagnostics)
}

func TestBuilder_CompileDirectoryError(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/x.tex", nil, past)
	fs.Errors["mkdir:/src/output"] = os.ErrPermission

	_, err := b.Compile(context.Background(), "/src/x.tex", "/src/output")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Empty(t, cmdExecutor.Calls)
}

func TestBuilder_ProcessFileSkipsUpToDate(t *testing.T) {
	b, fs, cmdExecutor, reporter := newTestBuilder(testOptions())
	fs.AddFile("/src/a/b/y.tex", nil, past)
	fs.AddFile("/src/output/a/b/y.pdf", nil, later)

	outcome, err := b.ProcessFile(context.Background(), "/src/a/b/y.tex")
	require.NoError(t, err)

	assert.Equal(t, target.StatusSkipped, outcome.Status)
	assert.True(t, outcome.OK())
	assert.Equal(t, "/src/output/a/b", outcome.TargetDir)
	assert.Equal(t, "/src/output/a/b/y.pdf", outcome.Artifact)
	assert.Empty(t, cmdExecutor.Calls)
	assert.Empty(t, fs.MkdirCalls)
	assert.Empty(t, reporter.StartedSources)
	assert.Len(t, reporter.Outcomes, 1)
}

func TestBuilder_ProcessFileMirrorsPath(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/a/b/y.tex", nil, past)
	cmdExecutor.ExecuteFunc = producesArtifact(fs, later)

	outcome, err := b.ProcessFile(context.Background(), "/src/a/b/y.tex")
	require.NoError(t, err)

	assert.Equal(t, target.StatusSucceeded, outcome.Status)
	assert.Equal(t, "/src/output/a/b/y.pdf", outcome.Artifact)
	_, err = fs.Stat("/src/output/a/b/y.pdf")
	assert.NoError(t, err)
}

func TestBuilder_ProcessFileOutsideRoot(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/elsewhere/deep/z.tex", nil, past)
	cmdExecutor.ExecuteFunc = producesArtifact(fs, later)

	outcome, err := b.ProcessFile(context.Background(), "/elsewhere/deep/z.tex")
	require.NoError(t, err)
	assert.Equal(t, "/src/output", outcome.TargetDir)
	assert.Equal(t, "/src/output/z.pdf", outcome.Artifact)
}

func TestBuilder_ProcessFileForce(t *testing.T) {
	opts := testOptions()
	opts.Force = true
	b, fs, cmdExecutor, _ := newTestBuilder(opts)
	fs.AddFile("/src/x.tex", nil, past)
	fs.AddFile("/src/output/x.pdf", nil, later)
	cmdExecutor.ExecuteFunc = producesArtifact(fs, later.Add(time.Hour))

	outcome, err := b.ProcessFile(context.Background(), "/src/x.tex")
	require.NoError(t, err)
	assert.Equal(t, target.StatusSucceeded, outcome.Status)
	assert.Len(t, cmdExecutor.Calls, 1)
}

func TestBuilder_ProcessFileDryRun(t *testing.T) {
	opts := testOptions()
	opts.DryRun = true
	b, fs, cmdExecutor, _ := newTestBuilder(opts)
	fs.AddFile("/src/x.tex", nil, past)

	outcome, err := b.ProcessFile(context.Background(), "/src/x.tex")
	require.NoError(t, err)
	assert.True(t, outcome.Planned)
	assert.True(t, outcome.OK())
	assert.Empty(t, cmdExecutor.Calls)
	assert.Empty(t, fs.MkdirCalls)
}

func TestBuilder_RunAll(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/a/x.tex", nil, past)
	fs.AddFile("/src/a/b/y.tex", nil, past)
	cmdExecutor.ExecuteFunc = producesArtifact(fs, later)

	summary, err := b.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, target.Summary{Discovered: 2, Succeeded: 2, FailedSources: nil}, summary)
	assert.Equal(t, 2, summary.Processed())

	for _, artifact := range []string{"/src/output/a/x.pdf", "/src/output/a/b/y.pdf"} {
		_, err := fs.Stat(artifact)
		assert.NoError(t, err, artifact)
	}

	// The artifacts must not be picked up as sources on the next run, and
	// nothing needs rebuilding.
	summary, err = b.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, target.Summary{Discovered: 2, Skipped: 2}, summary)
	assert.Len(t, cmdExecutor.Calls, 2)
}

func TestBuilder_RunAllToolMissing(t *testing.T) {
	b, fs, cmdExecutor, reporter := newTestBuilder(testOptions())
	fs.AddFile("/src/a.tex", nil, past)
	fs.AddFile("/src/b.tex", nil, past)
	cmdExecutor.ExecuteFunc = func(ctx context.Context, name string, arg ...string) ([]byte, error) {
		return nil, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}

	summary, err := b.RunAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuildFailed)

	assert.Len(t, cmdExecutor.Calls, 2)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 0, summary.Processed())
	assert.Equal(t, []string{"/src/a.tex", "/src/b.tex"}, summary.FailedSources)
	for _, outcome := range reporter.Outcomes {
		assert.ErrorIs(t, outcome.Err, ErrToolNotInstalled)
	}
}

func TestBuilder_RunAllPartialFailure(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/bad.tex", nil, past)
	fs.AddFile("/src/good.tex", nil, past)
	succeed := producesArtifact(fs, later)
	cmdExecutor.ExecuteFunc = func(ctx context.Context, name string, arg ...string) ([]byte, error) {
		if strings.HasSuffix(arg[3], "bad.tex") {
			return []byte("! LaTeX Error: File `missing.sty' not found.\n"), exitError{code: 1}
		}
		return succeed(ctx, name, arg...)
	}

	summary, err := b.RunAll(context.Background())
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Equal(t, target.Summary{
		Discovered:    2,
		Succeeded:     1,
		Failed:        1,
		FailedSources: []string{"/src/bad.tex"},
	}, summary)
}

func TestBuilder_RunAllDirectoryErrorIsFatal(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/a/x.tex", nil, past)
	fs.AddFile("/src/b/y.tex", nil, past)
	fs.Errors["mkdir:/src/output/a"] = os.ErrPermission

	_, err := b.RunAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.NotErrorIs(t, err, ErrBuildFailed)
	assert.Empty(t, cmdExecutor.Calls)
}

func TestBuilder_RunAllCancelled(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/a.tex", nil, past)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.RunAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, cmdExecutor.Calls)
}

func TestBuilder_RunOneMissing(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())

	_, err := b.RunOne(context.Background(), "/src/nope.tex")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Contains(t, err.Error(), "/src/nope.tex")
	assert.Empty(t, fs.MkdirCalls)
	assert.Empty(t, cmdExecutor.Calls)
}

func TestBuilder_RunOne(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/a/x.tex", nil, past)
	cmdExecutor.ExecuteFunc = producesArtifact(fs, later)

	summary, err := b.RunOne(context.Background(), "/src/a/x.tex")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	// Up to date now: the timestamp check still applies to single files.
	summary, err = b.RunOne(context.Background(), "/src/a/x.tex")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, cmdExecutor.Calls, 1)
}

func TestBuilder_RunOneFailure(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/x.tex", nil, past)
	cmdExecutor.ExecuteFunc = func(ctx context.Context, name string, arg ...string) ([]byte, error) {
		return []byte("! Emergency stop.\n"), exitError{code: 1}
	}

	summary, err := b.RunOne(context.Background(), "/src/x.tex")
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Equal(t, 1, summary.Failed)
}

func TestBuilder_CompileRepeated(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/x.tex", nil, past)
	cmdExecutor.ExecuteFunc = func(ctx context.Context, name string, arg ...string) ([]byte, error) {
		return []byte("! Emergency stop.\n"), exitError{code: 1}
	}

	outcome, err := b.Compile(context.Background(), "/src/x.tex", "/src/output")
	require.NoError(t, err)
	assert.Equal(t, target.StatusFailed, outcome.Status)
	assert.Equal(t, []string{"/src/x.tex"}, b.statusMgr.Summary().FailedSources)

	cmdExecutor.ExecuteFunc = producesArtifact(fs, later)
	outcome, err = b.Compile(context.Background(), "/src/x.tex", "/src/output")
	require.NoError(t, err)
	assert.Equal(t, target.StatusSucceeded, outcome.Status)
	assert.Len(t, cmdExecutor.Calls, 2)
	assert.Equal(t, target.Summary{Discovered: 1, Succeeded: 1}, b.statusMgr.Summary())
}

func TestBuilder_ProcessFileAgain(t *testing.T) {
	b, fs, cmdExecutor, _ := newTestBuilder(testOptions())
	fs.AddFile("/src/x.tex", nil, past)
	cmdExecutor.ExecuteFunc = producesArtifact(fs, later)

	outcome, err := b.ProcessFile(context.Background(), "/src/x.tex")
	require.NoError(t, err)
	assert.Equal(t, target.StatusSucceeded, outcome.Status)

	outcome, err = b.ProcessFile(context.Background(), "/src/x.tex")
	require.NoError(t, err)
	assert.Equal(t, target.StatusSkipped, outcome.Status)

	// Edited after the last build.
	fs.Touch("/src/x.tex", later.Add(time.Minute))
	cmdExecutor.ExecuteFunc = producesArtifact(fs, later.Add(time.Hour))
	outcome, err = b.ProcessFile(context.Background(), "/src/x.tex")
	require.NoError(t, err)
	assert.Equal(t, target.StatusSucceeded, outcome.Status)

	assert.Len(t, cmdExecutor.Calls, 2)
	assert.Equal(t, target.Summary{Discovered: 1, Succeeded: 1}, b.statusMgr.Summary())
}
