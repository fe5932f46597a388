package supervisor

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrPlatformUnsupported is returned by Start on platforms that cannot spawn
// child processes.
var ErrPlatformUnsupported = errors.New("platform cannot start processes")

// ErrNotRunning is returned by WaitReady when there is no server to wait for.
var ErrNotRunning = errors.New("stripe-mock is not running")

// StartupError reports a child that exited during the settle interval.
type StartupError struct {
	ExitCode int
	State    string
	Stderr   string
}

func newStartupError(p *process, state *os.ProcessState) *StartupError {
	return &StartupError{
		ExitCode: state.ExitCode(),
		State:    state.String(),
		Stderr:   strings.TrimSpace(p.stderr.String()),
	}
}

func (e *StartupError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("stripe-mock terminated early: %s", e.State)
	}
	return fmt.Sprintf("stripe-mock terminated early: %s: %s", e.State, e.Stderr)
}

// ExitError reports a child that exited after Start had returned.
type ExitError struct {
	PID    int
	Port   int
	State  string
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("stripe-mock (pid %d, port %d) exited: %s", e.PID, e.Port, e.State)
	}
	return fmt.Sprintf("stripe-mock (pid %d, port %d) exited: %s: %s", e.PID, e.Port, e.State, e.Stderr)
}

// OverrideError reports a port override that is not a valid port number.
type OverrideError struct {
	Name  string
	Value string
	Err   error
}

func (e *OverrideError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %v", e.Name, e.Value, e.Err)
}

func (e *OverrideError) Unwrap() error {
	return e.Err
}
