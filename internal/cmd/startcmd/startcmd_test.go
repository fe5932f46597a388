package startcmd_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rogpeppe/go-internal/testscript"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"github.com/artefactual-labs/stripemock/internal/cmd/rootcmd"
	"github.com/artefactual-labs/stripemock/internal/cmd/startcmd"
	"github.com/artefactual-labs/stripemock/internal/fakemock"
	"github.com/artefactual-labs/stripemock/internal/supervisor"
	"github.com/artefactual-labs/stripemock/internal/testutil"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"stripe-mock": fakemock.Main,
	})
}

func run(ctx context.Context, stdout, stderr *testutil.SafeBuffer, args ...string) error {
	root := rootcmd.New(strings.NewReader(""), stdout, stderr)
	_ = startcmd.New(root)
	if err := root.Command.Parse(append([]string{"start"}, args...)); err != nil {
		return err
	}
	return root.Command.Run(ctx)
}

func TestStartRunsUntilCancelled(t *testing.T) {
	t.Setenv("STRIPE_MOCK_PORT", "")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	stdout, stderr := &testutil.SafeBuffer{}, &testutil.SafeBuffer{}
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, stdout, stderr, "--settle", "200ms", "--wait")
	}()

	var port int
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		select {
		case err := <-errCh:
			return poll.Error(fmt.Errorf("start returned early: %v\n%s", err, stderr.String()))
		default:
		}
		p, err := strconv.Atoi(strings.TrimSpace(stdout.String()))
		if err != nil {
			return poll.Continue("port not printed yet")
		}
		port = p
		return poll.Success()
	}, poll.WithTimeout(10*time.Second), poll.WithDelay(50*time.Millisecond))

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/healthz", port)) //nolint:noctx
	assert.NilError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	cancel()
	select {
	case err := <-errCh:
		assert.NilError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("start did not return after cancellation")
	}
	assert.Assert(t, strings.Contains(stderr.String(), "Stopped stripe-mock."), stderr.String())
}

func TestStartFailsWhenChildExits(t *testing.T) {
	t.Setenv("STRIPE_MOCK_PORT", "")

	stdout, stderr := &testutil.SafeBuffer{}, &testutil.SafeBuffer{}
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(t.Context(), stdout, stderr, "--settle", "200ms", "--wait")
	}()

	pidRe := regexp.MustCompile(`msg="Started stripe-mock\." port=\d+ pid=(\d+)`)
	var pid int
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if strings.TrimSpace(stdout.String()) == "" {
			return poll.Continue("port not printed yet")
		}
		m := pidRe.FindStringSubmatch(stderr.String())
		if m == nil {
			return poll.Error(fmt.Errorf("pid not logged: %s", stderr.String()))
		}
		pid, _ = strconv.Atoi(m[1])
		return poll.Success()
	}, poll.WithTimeout(10*time.Second), poll.WithDelay(50*time.Millisecond))

	proc, err := os.FindProcess(pid)
	assert.NilError(t, err)
	assert.NilError(t, proc.Kill())

	select {
	case err := <-errCh:
		var exitErr *supervisor.ExitError
		assert.Assert(t, errors.As(err, &exitErr), "unexpected error: %v", err)
		assert.Equal(t, exitErr.PID, pid)
	case <-time.After(10 * time.Second):
		t.Fatal("start kept running after stripe-mock exited")
	}
}

func TestStartWithOverride(t *testing.T) {
	t.Setenv("STRIPE_MOCK_PORT", "4567")

	stdout, stderr := &testutil.SafeBuffer{}, &testutil.SafeBuffer{}
	err := run(t.Context(), stdout, stderr)
	assert.NilError(t, err)
	assert.Equal(t, stdout.String(), "4567\n")
}

func TestStartWithConfigFile(t *testing.T) {
	t.Setenv("STRIPE_MOCK_PORT", "")

	path := filepath.Join(t.TempDir(), "stripemock.toml")
	assert.NilError(t, os.WriteFile(path, []byte(`binary = "stripe-mock-not-installed"`), 0o644))

	stdout, stderr := &testutil.SafeBuffer{}, &testutil.SafeBuffer{}
	err := run(t.Context(), stdout, stderr, "--config", path)
	assert.ErrorContains(t, err, "start stripe-mock-not-installed")
	assert.Equal(t, stdout.String(), "")
}

func TestStartRejectsInvalidFlags(t *testing.T) {
	t.Setenv("STRIPE_MOCK_PORT", "")

	stdout, stderr := &testutil.SafeBuffer{}, &testutil.SafeBuffer{}
	err := run(t.Context(), stdout, stderr, "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "read config")
}
