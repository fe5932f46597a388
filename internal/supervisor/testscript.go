package supervisor

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rogpeppe/go-internal/testscript"
)

// TestScriptCmd implements the "mockserver" testscript command:
//
//	mockserver start [-settle d] [-stop-timeout d] [-env KEY=VALUE]...
//	mockserver stop
//	mockserver running
//	mockserver get PATH
//
// start exports MOCKSERVER_PORT and MOCKSERVER_URL and prints the port. Its
// flags are rejected while the server runs. The port override is read from the
// script environment, not the process one.
func TestScriptCmd(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) == 0 {
		ts.Fatalf("mockserver: missing subcommand")
	}
	sub := args[0]
	switch sub {
	case "start":
		mockserverStart(ts, neg, args[1:])
	case "stop":
		mockserverStop(ts, neg, args[1:])
	case "running":
		mockserverRunning(ts, neg, args[1:])
	case "get":
		mockserverGet(ts, neg, args[1:])
	default:
		ts.Fatalf("mockserver: unknown subcommand %q", sub)
	}
}

func mockserverStart(ts *testscript.TestScript, neg bool, args []string) {
	fs := flag.NewFlagSet("mockserver start", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	settle := fs.Duration("settle", 200*time.Millisecond, "settle interval")
	stopTimeout := fs.Duration("stop-timeout", DefaultStopTimeout, "stop timeout")
	var env []string
	fs.Func("env", "KEY=VALUE added to the stripe-mock environment", func(v string) error {
		if !strings.Contains(v, "=") {
			return fmt.Errorf("expected KEY=VALUE, got %q", v)
		}
		env = append(env, v)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		ts.Fatalf("mockserver start: %v", err)
	}

	// A running server is reused; an idle one is replaced so that the flags of
	// this start apply.
	sup, ok := getSupervisor(ts)
	running := ok && sup.Running()
	var err error
	switch {
	case running && fs.NFlag() > 0:
		err = errors.New("stripe-mock is already running, stop it before changing flags")
	case !running:
		cfg := DefaultConfig()
		cfg.SettleInterval = *settle
		cfg.StopTimeout = *stopTimeout
		sup = New(cfg,
			WithLogger(slog.New(slog.NewTextHandler(logWriter{ts}, nil))),
			WithLookupEnv(func(key string) (string, bool) {
				v := ts.Getenv(key)
				return v, v != ""
			}),
			WithEnv(env...),
		)
		setSupervisor(ts, sup)
		ts.Defer(func() {
			sup.Stop()
			clearSupervisor(ts)
		})
	}

	port := unsetPort
	if err == nil {
		port, err = sup.Start()
	}
	if neg {
		if err == nil {
			ts.Fatalf("mockserver start: unexpected success on port %d", port)
		}
		_, _ = fmt.Fprintln(ts.Stderr(), err)
		return
	}
	if err != nil {
		ts.Fatalf("mockserver start: %v", err)
	}

	// An overridden port belongs to someone else; don't wait on it.
	if sup.Running() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sup.WaitReady(ctx); err != nil {
			ts.Fatalf("mockserver start: wait ready: %v", err)
		}
	}

	ts.Setenv("MOCKSERVER_PORT", strconv.Itoa(port))
	ts.Setenv("MOCKSERVER_URL", fmt.Sprintf("http://127.0.0.1:%d", port))
	_, _ = fmt.Fprintln(ts.Stdout(), port)
}

func mockserverStop(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("mockserver stop: negation not supported")
	}
	if len(args) != 0 {
		ts.Fatalf("mockserver stop: unexpected arguments: %v", args)
	}
	if sup, ok := getSupervisor(ts); ok {
		sup.Stop()
	}
}

func mockserverRunning(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 0 {
		ts.Fatalf("mockserver running: unexpected arguments: %v", args)
	}
	sup, ok := getSupervisor(ts)
	running := ok && sup.Running()
	if running == neg {
		if running {
			ts.Fatalf("mockserver running: stripe-mock is running (pid %d)", sup.PID())
		}
		ts.Fatalf("mockserver running: stripe-mock is not running")
	}
}

func mockserverGet(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("mockserver get: negation not supported")
	}
	if len(args) != 1 {
		ts.Fatalf("usage: mockserver get PATH")
	}
	base := ts.Getenv("MOCKSERVER_URL")
	if base == "" {
		ts.Fatalf("mockserver get: MOCKSERVER_URL not set, start the server first")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	res, err := client.Get(base + args[0]) //nolint:noctx
	if err != nil {
		ts.Fatalf("mockserver get: %v", err)
	}
	defer res.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(res.Body)
	if err != nil {
		ts.Fatalf("mockserver get: read body: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		ts.Fatalf("mockserver get: unexpected status %d: %s", res.StatusCode, body)
	}
	_, _ = ts.Stdout().Write(body)
}

func setSupervisor(ts *testscript.TestScript, sup *Supervisor) {
	supervisorsMu.Lock()
	defer supervisorsMu.Unlock()
	supervisors[ts] = sup
}

func getSupervisor(ts *testscript.TestScript) (*Supervisor, bool) {
	supervisorsMu.Lock()
	defer supervisorsMu.Unlock()
	sup, ok := supervisors[ts]
	return sup, ok
}

func clearSupervisor(ts *testscript.TestScript) {
	supervisorsMu.Lock()
	defer supervisorsMu.Unlock()
	delete(supervisors, ts)
}

// logWriter sends supervisor logs to the script log, which is usable from
// deferred functions too.
type logWriter struct {
	ts *testscript.TestScript
}

func (w logWriter) Write(p []byte) (int, error) {
	w.ts.Logf("%s", p)
	return len(p), nil
}

var (
	supervisorsMu sync.Mutex
	supervisors   = make(map[*testscript.TestScript]*Supervisor)
)
