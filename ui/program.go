package ui

import (
	"context"
	"time"

	"github.com/pkg/errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ZacxDev/mirrortex/target"
)

// ErrAborted is returned by Run when the user quits before the build ends.
var ErrAborted = errors.New("build aborted from the status view")

// Reporter forwards builder progress to a running status view.
type Reporter struct {
	send func(tea.Msg)
}

func NewReporter(send func(tea.Msg)) *Reporter {
	return &Reporter{send: send}
}

func (r *Reporter) Started(ctx context.Context, source, targetDir string) {
	r.send(startedMsg{source: source, targetDir: targetDir, at: time.Now()})
}

func (r *Reporter) Finished(ctx context.Context, outcome target.Outcome) {
	r.send(finishedMsg{outcome: outcome})
}

// BuildFunc runs a build, reporting each file to reporter.
type BuildFunc func(ctx context.Context, reporter *Reporter) (target.Summary, error)

// Run shows the status view while build runs in the background. Quitting
// the view cancels the build and waits for it to return.
func Run(ctx context.Context, root string, build BuildFunc, opts ...tea.ProgramOption) (target.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newModel(root)
	p := tea.NewProgram(m, opts...)

	var (
		summary  target.Summary
		buildErr error
	)
	buildDone := make(chan struct{})
	go func() {
		defer close(buildDone)
		summary, buildErr = build(ctx, NewReporter(p.Send))
		p.Send(doneMsg{summary: summary, err: buildErr})
	}()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, runErr := p.Run()
	cancel()
	<-buildDone

	if runErr != nil {
		return summary, errors.Wrap(runErr, "status view failed")
	}
	if m.aborted && buildErr == nil {
		return summary, ErrAborted
	}
	return summary, buildErr
}
