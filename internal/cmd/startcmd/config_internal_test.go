package startcmd

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/artefactual-labs/stripemock/internal/cmd/rootcmd"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()

	root := rootcmd.New(strings.NewReader(""), io.Discard, io.Discard)
	cfg := New(root)
	assert.NilError(t, root.Command.Parse(append([]string{"start"}, args...)))
	return cfg
}

func TestSupervisorConfigFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stripemock.toml")
	assert.NilError(t, os.WriteFile(path, []byte("settle = \"3s\"\nstop_timeout = \"7s\"\n"), 0o644))

	t.Run("Config file values are kept without flags", func(t *testing.T) {
		c, err := parse(t, "--config", path).supervisorConfig()
		assert.NilError(t, err)
		assert.Equal(t, c.SettleInterval, 3*time.Second)
		assert.Equal(t, c.StopTimeout, 7*time.Second)
	})

	t.Run("Explicit zero durations override the config file", func(t *testing.T) {
		c, err := parse(t, "--config", path, "--settle", "0", "--stop-timeout", "0s").supervisorConfig()
		assert.NilError(t, err)
		assert.Equal(t, c.SettleInterval, time.Duration(0))
		assert.Equal(t, c.StopTimeout, time.Duration(0))
	})

	t.Run("Negative durations are rejected", func(t *testing.T) {
		_, err := parse(t, "--settle=-1s").supervisorConfig()
		assert.ErrorContains(t, err, "settle interval must not be negative")
	})
}
