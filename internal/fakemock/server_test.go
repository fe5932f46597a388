package fakemock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

const (
	testSpec     = `{"openapi": "3.0.0", "paths": {}}`
	testFixtures = `{"resources": {"customer": {"id": "cus_fixture", "object": "customer", "livemode": false}}}`
)

func writeFiles(t *testing.T, spec, fixtures string) *Config {
	t.Helper()

	dir := t.TempDir()
	cfg := &Config{
		Listen:       "127.0.0.1:0",
		SpecPath:     filepath.Join(dir, "spec3.json"),
		FixturesPath: filepath.Join(dir, "fixtures3.json"),
	}
	assert.NilError(t, os.WriteFile(cfg.SpecPath, []byte(spec), 0o644))
	assert.NilError(t, os.WriteFile(cfg.FixturesPath, []byte(fixtures), 0o644))
	return cfg
}

func startTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()

	srv, err := NewServer(cfg)
	assert.NilError(t, err)
	if err := srv.Start(); err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.EPERM) {
			t.Skipf("skipping fake server tests: %v", err)
		}
		t.Fatalf("start fake server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("shutdown fake server: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	assert.NilError(t, srv.WaitReady(ctx))
	return srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(url) //nolint:noctx
	assert.NilError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var payload map[string]any
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func TestRetrieveResource(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, writeFiles(t, testSpec, testFixtures))

	status, payload := getJSON(t, fmt.Sprintf("http://%s/v1/customers/cus_123", srv.Addr()))
	assert.Equal(t, status, http.StatusOK)
	assert.Equal(t, payload["id"], "cus_123")
	assert.Equal(t, payload["object"], "customer")
}

func TestListResource(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, writeFiles(t, testSpec, testFixtures))

	status, payload := getJSON(t, fmt.Sprintf("http://%s/v1/customers", srv.Addr()))
	assert.Equal(t, status, http.StatusOK)
	assert.Equal(t, payload["object"], "list")
	assert.Equal(t, payload["url"], "/v1/customers")
	data, ok := payload["data"].([]any)
	assert.Assert(t, ok)
	assert.Equal(t, len(data), 1)
}

func TestCreateResource(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, writeFiles(t, testSpec, testFixtures))
	url := fmt.Sprintf("http://%s/v1/customers", srv.Addr())

	ids := map[string]bool{}
	for range 2 {
		resp, err := http.Post(url, "application/x-www-form-urlencoded", bytes.NewBufferString("email=a@example.com")) //nolint:noctx
		assert.NilError(t, err)
		var payload map[string]any
		assert.NilError(t, json.NewDecoder(resp.Body).Decode(&payload))
		resp.Body.Close() //nolint:errcheck

		assert.Equal(t, resp.StatusCode, http.StatusOK)
		id, _ := payload["id"].(string)
		assert.Assert(t, strings.HasPrefix(id, "cus_"), "unexpected id %q", id)
		ids[id] = true
	}
	assert.Equal(t, len(ids), 2)
	assert.Equal(t, srv.Created(), 2)
}

func TestUnknownResource(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, writeFiles(t, testSpec, testFixtures))

	status, payload := getJSON(t, fmt.Sprintf("http://%s/v1/widgets/wid_1", srv.Addr()))
	assert.Equal(t, status, http.StatusNotFound)
	errPayload, ok := payload["error"].(map[string]any)
	assert.Assert(t, ok)
	assert.Equal(t, errPayload["type"], "invalid_request_error")
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := startTestServer(t, writeFiles(t, testSpec, testFixtures))

	for _, tc := range []struct {
		path  string
		allow string
	}{
		{path: "/v1/customers", allow: "GET, POST"},
		{path: "/v1/customers/cus_1", allow: "GET"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			req, err := http.NewRequestWithContext(t.Context(), http.MethodDelete, "http://"+srv.Addr()+tc.path, nil)
			assert.NilError(t, err)
			resp, err := http.DefaultClient.Do(req)
			assert.NilError(t, err)
			resp.Body.Close() //nolint:errcheck

			assert.Equal(t, resp.StatusCode, http.StatusMethodNotAllowed)
			assert.Equal(t, resp.Header.Get("Allow"), tc.allow)
		})
	}
}

func TestNewServerRejectsInvalidFiles(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		spec     string
		fixtures string
		err      string
	}{
		"spec without openapi": {
			spec:     `{"paths": {}}`,
			fixtures: testFixtures,
			err:      "spec is missing the openapi version",
		},
		"malformed fixtures": {
			spec:     testSpec,
			fixtures: `{"resources": [`,
			err:      "decode fixtures",
		},
		"empty fixtures": {
			spec:     testSpec,
			fixtures: `{"resources": {}}`,
			err:      "fixtures define no resources",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := NewServer(writeFiles(t, tc.spec, tc.fixtures))
			assert.ErrorContains(t, err, tc.err)
		})
	}
}

func TestNewServerRequiresPaths(t *testing.T) {
	t.Parallel()

	_, err := NewServer(&Config{Listen: "127.0.0.1:0"})
	assert.Error(t, err, "spec path is required")
}

func TestRunExitsEarly(t *testing.T) {
	t.Setenv(ExitCodeEnv, "3")

	var stderr bytes.Buffer
	code := run(t.Context(), nil, &stderr)
	assert.Equal(t, code, 3)
	assert.Assert(t, strings.Contains(stderr.String(), "exiting early with status 3"))
}

func TestRunRejectsMissingFiles(t *testing.T) {
	var stderr bytes.Buffer
	code := run(t.Context(), []string{"-http-port", "0", "-spec", "missing.json", "-fixtures", "missing.json"}, &stderr)
	assert.Equal(t, code, 1)
	assert.Assert(t, strings.Contains(stderr.String(), "read spec"))
}
