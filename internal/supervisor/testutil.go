package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"testing"
	"time"
)

// StartTestServer starts stripe-mock for the duration of a test and registers
// a cleanup hook on tb to stop it. The test is skipped when this platform
// cannot run it.
func StartTestServer(tb testing.TB, cfg Config, opts ...Option) (*Supervisor, int) {
	tb.Helper()

	sup := New(cfg, opts...)
	port, err := sup.Start()
	if err != nil {
		if errors.Is(err, ErrPlatformUnsupported) || errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			tb.Skipf("skipping stripe-mock tests: %v", err)
		}
		tb.Fatalf("start stripe-mock: %v", err)
	}
	tb.Cleanup(sup.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sup.WaitReady(ctx); err != nil {
		tb.Fatalf("wait for stripe-mock: %v", err)
	}

	return sup, port
}

// RunMain starts sup, runs the tests and stops sup again. It is meant to be
// called from TestMain:
//
//	func TestMain(m *testing.M) {
//		os.Exit(supervisor.RunMain(m, supervisor.New(supervisor.DefaultConfig())))
//	}
//
// Tests call Start on the same supervisor to learn the port. A failed start
// aborts the run with exit status 1.
func RunMain(m interface{ Run() int }, sup *Supervisor) int {
	if _, err := sup.Start(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "stripe-mock: %v\n", err)
		return 1
	}
	defer sup.Stop()

	return m.Run()
}
