package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultBinary         = "stripe-mock"
	DefaultPortEnv        = "STRIPE_MOCK_PORT"
	DefaultSettleInterval = time.Second
	DefaultStopTimeout    = 5 * time.Second
)

type Config struct {
	// Binary is the stripe-mock executable, looked up in $PATH when it has
	// no path separators.
	Binary       string
	SpecPath     string
	FixturesPath string
	// PortEnv names the environment variable holding the port of an
	// externally managed stripe-mock.
	PortEnv string
	// SettleInterval is how long Start waits before checking that the child
	// is still alive.
	SettleInterval time.Duration
	// StopTimeout bounds the wait after the termination signal. The child is
	// killed when it expires.
	StopTimeout time.Duration
}

// DefaultConfig points at the OpenAPI files stored next to this package.
func DefaultConfig() Config {
	dir := openapiDir()
	return Config{
		Binary:         DefaultBinary,
		SpecPath:       filepath.Join(dir, "spec3.json"),
		FixturesPath:   filepath.Join(dir, "fixtures3.json"),
		PortEnv:        DefaultPortEnv,
		SettleInterval: DefaultSettleInterval,
		StopTimeout:    DefaultStopTimeout,
	}
}

func openapiDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "openapi"
	}
	return filepath.Join(filepath.Dir(file), "openapi")
}

func (c *Config) Validate() error {
	if c.Binary == "" {
		return errors.New("binary is required")
	}
	if c.SpecPath == "" {
		return errors.New("spec path is required")
	}
	if c.FixturesPath == "" {
		return errors.New("fixtures path is required")
	}
	if c.PortEnv == "" {
		return errors.New("port environment variable name is required")
	}
	if c.SettleInterval < 0 {
		return fmt.Errorf("settle interval must not be negative: %s", c.SettleInterval)
	}
	if c.StopTimeout < 0 {
		return fmt.Errorf("stop timeout must not be negative: %s", c.StopTimeout)
	}
	return nil
}

type fileConfig struct {
	Binary      string `toml:"binary"`
	Spec        string `toml:"spec"`
	Fixtures    string `toml:"fixtures"`
	PortEnv     string `toml:"port_env"`
	Settle      string `toml:"settle"`
	StopTimeout string `toml:"stop_timeout"`
}

// LoadConfig reads a TOML file on top of DefaultConfig. Relative spec and
// fixtures paths are resolved against the directory of the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	base := filepath.Dir(path)
	if fc.Binary != "" {
		cfg.Binary = fc.Binary
	}
	if fc.Spec != "" {
		cfg.SpecPath = resolve(base, fc.Spec)
	}
	if fc.Fixtures != "" {
		cfg.FixturesPath = resolve(base, fc.Fixtures)
	}
	if fc.PortEnv != "" {
		cfg.PortEnv = fc.PortEnv
	}
	if fc.Settle != "" {
		if cfg.SettleInterval, err = time.ParseDuration(fc.Settle); err != nil {
			return cfg, fmt.Errorf("decode config: settle: %w", err)
		}
	}
	if fc.StopTimeout != "" {
		if cfg.StopTimeout, err = time.ParseDuration(fc.StopTimeout); err != nil {
			return cfg, fmt.Errorf("decode config: stop_timeout: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
