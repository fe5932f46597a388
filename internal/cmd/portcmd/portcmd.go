package portcmd

import (
	"context"
	"fmt"

	"github.com/peterbourgon/ff/v4"

	"github.com/artefactual-labs/stripemock/internal/cmd/rootcmd"
	"github.com/artefactual-labs/stripemock/internal/testutil"
)

type Config struct {
	*rootcmd.RootConfig
	Command *ff.Command
	Flags   *ff.FlagSet
}

func New(parent *rootcmd.RootConfig) *Config {
	cfg := &Config{RootConfig: parent}
	cfg.Flags = ff.NewFlagSet("port").SetParent(parent.Flags)

	cfg.Command = &ff.Command{
		Name:      "port",
		Usage:     "stripemock port",
		ShortHelp: "Print a free TCP port on the loopback interface.",
		Flags:     cfg.Flags,
		Exec:      cfg.Exec,
	}
	parent.Command.Subcommands = append(parent.Command.Subcommands, cfg.Command)
	return cfg
}

func (cfg *Config) Exec(ctx context.Context, _ []string) error {
	port, err := testutil.FreePort()
	if err != nil {
		return fmt.Errorf("find available port: %w", err)
	}

	_, err = fmt.Fprintln(cfg.Stdout, port)

	return err
}
