package rootcmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

// EnvVarPrefix is the prefix of the environment variables that set flags,
// e.g. STRIPEMOCK_SETTLE for --settle.
const EnvVarPrefix = "STRIPEMOCK"

type RootConfig struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Flags   *ff.FlagSet
	Command *ff.Command

	debug *bool

	loggerOnce sync.Once
	logger     *slog.Logger
}

func New(stdin io.Reader, stdout, stderr io.Writer) *RootConfig {
	cfg := &RootConfig{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}

	cfg.Flags = ff.NewFlagSet("stripemock")
	cfg.debug = cfg.Flags.BoolLong("debug", "log debug information")

	cfg.Command = &ff.Command{
		Name:      "stripemock",
		Usage:     "stripemock <SUBCOMMAND> ...",
		ShortHelp: "Run stripe-mock for integration tests.",
		Flags:     cfg.Flags,
		Exec:      cfg.exec,
	}

	return cfg
}

func (cfg *RootConfig) exec(_ context.Context, args []string) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(cfg.Stdout, ffhelp.Command(cfg.Command))
		return ff.ErrHelp
	}
	return errors.New("missing command")
}

func (cfg *RootConfig) Logger() *slog.Logger {
	cfg.loggerOnce.Do(func() {
		level := slog.LevelInfo
		if cfg.debug != nil && *cfg.debug {
			level = slog.LevelDebug
		}
		handler := slog.NewTextHandler(cfg.Stderr, &slog.HandlerOptions{Level: level})
		cfg.logger = slog.New(handler)
	})
	return cfg.logger
}
