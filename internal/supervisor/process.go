package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/artefactual-labs/stripemock/internal/testutil"
)

// process owns a running child. A goroutine waits on it from the moment it
// is started, so the child is always reaped and done is closed once it has
// exited.
type process struct {
	cmd       *exec.Cmd
	stdout    *testutil.SafeBuffer
	stderr    *testutil.SafeBuffer
	done      chan struct{}
	terminate func(*os.Process) error
}

// stopOutcome says how stop got rid of the child.
type stopOutcome int

const (
	stopExited       stopOutcome = iota // exited by itself or on the termination signal
	stopTimedOut                        // killed after the stop timeout
	stopSignalFailed                    // killed because the termination signal failed
)

func spawn(name string, args, env []string) (*process, error) {
	p := &process{
		cmd:       exec.Command(name, args...),
		stdout:    &testutil.SafeBuffer{},
		stderr:    &testutil.SafeBuffer{},
		done:      make(chan struct{}),
		terminate: terminate,
	}
	p.cmd.Stdout = p.stdout
	p.cmd.Stderr = p.stderr
	// Grandchildren holding the output pipes must not keep Wait blocked.
	p.cmd.WaitDelay = time.Second
	if len(env) > 0 {
		p.cmd.Env = append(os.Environ(), env...)
	}

	if err := p.cmd.Start(); err != nil {
		return nil, err
	}
	go func() {
		_ = p.cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *process) pid() int {
	return p.cmd.Process.Pid
}

// poll reports whether the child has exited, without blocking.
func (p *process) poll() (*os.ProcessState, bool) {
	select {
	case <-p.done:
		return p.cmd.ProcessState, true
	default:
		return nil, false
	}
}

// stop sends the termination signal and waits up to timeout for the child to
// exit, then kills it. It returns once the child has been reaped.
func (p *process) stop(timeout time.Duration) (stopOutcome, error) {
	if _, exited := p.poll(); exited {
		return stopExited, nil
	}

	if err := p.terminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
		<-p.done
		return stopSignalFailed, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return stopExited, nil
	case <-timer.C:
	}

	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		err = nil
	}
	<-p.done
	return stopTimedOut, err
}
