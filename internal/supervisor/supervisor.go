package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/artefactual-labs/stripemock/internal/testutil"
)

const unsetPort = -1

// Supervisor owns at most one stripe-mock child process.
//
// The zero value is not usable; build one with New. Start and Stop must not
// be called concurrently.
type Supervisor struct {
	cfg       Config
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
	env       []string

	canSpawn bool
	freePort func() (int, error)

	// proc and port change together: proc is nil exactly when port is unset.
	proc *process
	port int
}

type Option func(*Supervisor)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithLookupEnv replaces os.LookupEnv as the source of the port override.
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(s *Supervisor) {
		s.lookupEnv = lookup
	}
}

// WithEnv adds KEY=VALUE entries to the environment of the child.
func WithEnv(env ...string) Option {
	return func(s *Supervisor) {
		s.env = append(s.env, env...)
	}
}

func New(cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		logger:    slog.Default(),
		lookupEnv: os.LookupEnv,
		canSpawn:  canSpawnProcesses,
		freePort:  testutil.FreePort,
		port:      unsetPort,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start makes sure stripe-mock is running and returns the port it listens
// on. Calling Start again while the child runs returns the same port. On
// error nothing is left running.
func (s *Supervisor) Start() (int, error) {
	if port, ok, err := s.override(); ok || err != nil {
		return port, err
	}

	if s.proc != nil {
		s.logger.Info("stripe-mock already running.", slog.Int("port", s.port))
		return s.port, nil
	}

	if !s.canSpawn {
		return unsetPort, fmt.Errorf("%w: start stripe-mock manually and set %s to its HTTP port", ErrPlatformUnsupported, s.cfg.PortEnv)
	}

	port, err := s.freePort()
	if err != nil {
		return unsetPort, fmt.Errorf("find available port: %w", err)
	}

	s.logger.Info("Starting stripe-mock.", slog.Int("port", port))

	proc, err := spawn(s.cfg.Binary, s.args(port), s.env)
	if err != nil {
		return unsetPort, fmt.Errorf("start %s: %w", s.cfg.Binary, err)
	}

	time.Sleep(s.cfg.SettleInterval)

	if state, exited := proc.poll(); exited {
		return unsetPort, newStartupError(proc, state)
	}

	s.proc, s.port = proc, port
	s.logger.Info("Started stripe-mock.", slog.Int("port", port), slog.Int("pid", proc.pid()))

	return port, nil
}

// Stop terminates the child, if any, and waits for it to exit.
func (s *Supervisor) Stop() {
	if s.proc == nil {
		return
	}

	s.logger.Info("Stopping stripe-mock.", slog.Int("pid", s.proc.pid()))

	outcome, err := s.proc.stop(s.cfg.StopTimeout)
	switch outcome {
	case stopSignalFailed:
		s.logger.Warn("Killed stripe-mock, termination signal failed.", slog.Int("pid", s.proc.pid()), slog.Any("err", err))
	case stopTimedOut:
		s.logger.Warn("Killed stripe-mock after stop timeout.", slog.Int("pid", s.proc.pid()), slog.Duration("timeout", s.cfg.StopTimeout))
		if err != nil {
			s.logger.Warn("Failed to kill stripe-mock.", slog.Int("pid", s.proc.pid()), slog.Any("err", err))
		}
	}

	s.proc, s.port = nil, unsetPort

	s.logger.Info("Stopped stripe-mock.")
}

// WaitReady blocks until the server accepts TCP connections. It fails early
// if the child exits.
func (s *Supervisor) WaitReady(ctx context.Context) error {
	port, overridden, err := s.override()
	if err != nil {
		return err
	}
	if !overridden {
		if s.proc == nil {
			return ErrNotRunning
		}
		port = s.port
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: 250 * time.Millisecond}
	proc := s.proc

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(25*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
		backoff.WithMaxElapsedTime(0),
	)

	return backoff.Retry(func() error {
		if !overridden {
			if state, exited := proc.poll(); exited {
				return backoff.Permanent(newStartupError(proc, state))
			}
		}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}, backoff.WithContext(b, ctx))
}

// Done returns a channel that is closed when the supervised child exits. It
// returns nil, which blocks forever, when no child is held.
func (s *Supervisor) Done() <-chan struct{} {
	if s.proc == nil {
		return nil
	}
	return s.proc.done
}

// Err returns an *ExitError once the supervised child has exited, and nil
// while it runs or when no child is held.
func (s *Supervisor) Err() error {
	if s.proc == nil {
		return nil
	}
	state, exited := s.proc.poll()
	if !exited {
		return nil
	}
	return &ExitError{
		PID:    s.proc.pid(),
		Port:   s.port,
		State:  state.String(),
		Stderr: strings.TrimSpace(s.proc.stderr.String()),
	}
}

// Running reports whether the supervisor holds a child process.
func (s *Supervisor) Running() bool {
	return s.proc != nil
}

// Port returns the port of the supervised child, or -1.
func (s *Supervisor) Port() int {
	return s.port
}

// PID returns the process id of the supervised child, or -1.
func (s *Supervisor) PID() int {
	if s.proc == nil {
		return -1
	}
	return s.proc.pid()
}

// Output returns what the child has written so far.
func (s *Supervisor) Output() (stdout, stderr string) {
	if s.proc == nil {
		return "", ""
	}
	return s.proc.stdout.String(), s.proc.stderr.String()
}

// override reads the port of an externally managed stripe-mock.
func (s *Supervisor) override() (port int, ok bool, err error) {
	value, found := s.lookupEnv(s.cfg.PortEnv)
	if !found || value == "" {
		return unsetPort, false, nil
	}

	port, err = strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return unsetPort, false, &OverrideError{Name: s.cfg.PortEnv, Value: value, Err: err}
	}
	if port < 1 || port > 65535 {
		return unsetPort, false, &OverrideError{Name: s.cfg.PortEnv, Value: value, Err: errors.New("port out of range")}
	}

	s.logger.Info("Port override set, assuming stripe-mock is already running.", slog.String("env", s.cfg.PortEnv), slog.Int("port", port))

	return port, true, nil
}

func (s *Supervisor) args(port int) []string {
	return []string{
		"-http-port", strconv.Itoa(port),
		"-spec", s.cfg.SpecPath,
		"-fixtures", s.cfg.FixturesPath,
	}
}
