package pulse

import (
	"context"
	"errors"
	"os/exec"
)

// Executor abstracts command execution so tests can substitute a fake server.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// CommandError carries the stderr of a failed external command.
type CommandError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }

// commandExecutor executes commands using os/exec.
type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &CommandError{ExitCode: exitErr.ExitCode(), Stderr: string(exitErr.Stderr), Err: err}
		}
		return out, err
	}
	return out, nil
}
