package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ZacxDev/mirrortex/target"
)

// MockCommandExecutor implements the CommandExecutor interface for testing
type MockCommandExecutor struct {
	ExecuteFunc func(context.Context, string, ...string) ([]byte, error)

	mu    sync.Mutex
	Calls [][]string
}

func (m *MockCommandExecutor) Execute(ctx context.Context, name string, arg ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, append([]string{name}, arg...))
	m.mu.Unlock()
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, name, arg...)
	}
	return nil, nil
}

// MockReporter records what the builder reports.
type MockReporter struct {
	StartedSources []string
	Outcomes       []target.Outcome
}

func (m *MockReporter) Started(ctx context.Context, source, targetDir string) {
	m.StartedSources = append(m.StartedSources, source)
}

func (m *MockReporter) Finished(ctx context.Context, outcome target.Outcome) {
	m.Outcomes = append(m.Outcomes, outcome)
}

// exitError mimics *exec.ExitError.
type exitError struct {
	code int
}

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e exitError) ExitCode() int { return e.code }
