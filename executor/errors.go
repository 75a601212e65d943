package executor

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMissingInput is returned by RunOne when the named file does not exist.
	ErrMissingInput = errors.New("input file not found")
	// ErrToolNotInstalled marks a file whose compiler could not be found on PATH.
	ErrToolNotInstalled = errors.New("tool not found")
	// ErrToolTimeout marks a compilation killed after the configured timeout.
	ErrToolTimeout = errors.New("tool timed out")
	// ErrBuildFailed is returned by RunOne and RunAll when a file failed.
	ErrBuildFailed = errors.New("build failed")
)

// ToolExitError reports a compiler that ran but exited non-zero.
type ToolExitError struct {
	Tool string
	Code int
}

func (e *ToolExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.Code)
}
