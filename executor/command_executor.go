package executor

import (
	"context"
	"os/exec"
)

// CommandExecutor interface for dependency injection and improved testability
type CommandExecutor interface {
	// Execute runs name with arg and returns its combined stdout and stderr.
	Execute(ctx context.Context, name string, arg ...string) ([]byte, error)
}

// RealCommandExecutor implements CommandExecutor interface using actual OS calls
type RealCommandExecutor struct{}

func (RealCommandExecutor) Execute(ctx context.Context, name string, arg ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, arg...).CombinedOutput()
}
