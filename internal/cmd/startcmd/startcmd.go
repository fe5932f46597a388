package startcmd

import (
	"context"
	"fmt"
	"time"

	"github.com/peterbourgon/ff/v4"

	"github.com/artefactual-labs/stripemock/internal/cmd/rootcmd"
	"github.com/artefactual-labs/stripemock/internal/supervisor"
)

const readyTimeout = 30 * time.Second

type Config struct {
	*rootcmd.RootConfig
	Command *ff.Command
	Flags   *ff.FlagSet

	configFile  *string
	binary      *string
	spec        *string
	fixtures    *string
	settle      *time.Duration
	stopTimeout *time.Duration
	wait        *bool
}

func New(parent *rootcmd.RootConfig) *Config {
	cfg := &Config{RootConfig: parent}
	cfg.Flags = ff.NewFlagSet("start").SetParent(parent.Flags)
	cfg.configFile = cfg.Flags.StringLong("config", "", "TOML configuration file")
	cfg.binary = cfg.Flags.StringLong("binary", "", "stripe-mock executable")
	cfg.spec = cfg.Flags.StringLong("spec", "", "OpenAPI specification passed to stripe-mock")
	cfg.fixtures = cfg.Flags.StringLong("fixtures", "", "fixtures passed to stripe-mock")
	cfg.settle = cfg.Flags.DurationLong("settle", 0, "time given to stripe-mock to bind or crash (default 1s, 0 disables)")
	cfg.stopTimeout = cfg.Flags.DurationLong("stop-timeout", 0, "time to wait after SIGTERM before killing (default 5s)")
	cfg.wait = cfg.Flags.BoolLong("wait", "wait until stripe-mock accepts connections before printing the port")

	cfg.Command = &ff.Command{
		Name:      "start",
		Usage:     "stripemock start [FLAGS]",
		ShortHelp: "Run stripe-mock on a free port until interrupted.",
		LongHelp: "Prints the port stripe-mock listens on. When STRIPE_MOCK_PORT is set " +
			"its value is printed and nothing is started.",
		Flags: cfg.Flags,
		Exec:  cfg.Exec,
	}
	parent.Command.Subcommands = append(parent.Command.Subcommands, cfg.Command)
	return cfg
}

func (cfg *Config) Exec(ctx context.Context, _ []string) error {
	supCfg, err := cfg.supervisorConfig()
	if err != nil {
		return err
	}

	sup := supervisor.New(supCfg, supervisor.WithLogger(cfg.Logger()))
	port, err := sup.Start()
	if err != nil {
		return err
	}
	defer sup.Stop()

	if *cfg.wait && sup.Running() {
		readyCtx, cancel := context.WithTimeout(ctx, readyTimeout)
		defer cancel()
		if err := sup.WaitReady(readyCtx); err != nil {
			return fmt.Errorf("wait for stripe-mock: %w", err)
		}
	}

	if _, err := fmt.Fprintln(cfg.Stdout, port); err != nil {
		return err
	}

	// Nothing to supervise when the port was overridden.
	if !sup.Running() {
		return nil
	}

	select {
	case <-ctx.Done():
		return nil
	case <-sup.Done():
		return sup.Err()
	}
}

func (cfg *Config) supervisorConfig() (supervisor.Config, error) {
	c := supervisor.DefaultConfig()
	if *cfg.configFile != "" {
		var err error
		if c, err = supervisor.LoadConfig(*cfg.configFile); err != nil {
			return c, err
		}
	}

	if *cfg.binary != "" {
		c.Binary = *cfg.binary
	}
	if *cfg.spec != "" {
		c.SpecPath = *cfg.spec
	}
	if *cfg.fixtures != "" {
		c.FixturesPath = *cfg.fixtures
	}
	if cfg.isSet("settle") {
		c.SettleInterval = *cfg.settle
	}
	if cfg.isSet("stop-timeout") {
		c.StopTimeout = *cfg.stopTimeout
	}

	return c, c.Validate()
}

// isSet reports whether a flag was given on the command line or through the
// environment, so that an explicit zero still overrides the config file.
func (cfg *Config) isSet(name string) bool {
	f, ok := cfg.Flags.GetFlag(name)
	return ok && f.IsSet()
}
