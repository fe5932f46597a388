package fakemock

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
)

const (
	// ExitCodeEnv makes the fake exit with the given status before serving.
	ExitCodeEnv = "FAKEMOCK_EXIT_CODE"
	// IgnoreTermEnv makes the fake ignore SIGTERM, so only a kill stops it.
	IgnoreTermEnv = "FAKEMOCK_IGNORE_TERM"
)

// Main runs the fake as a stripe-mock binary and exits the process.
func Main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	if v := os.Getenv(ExitCodeEnv); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "invalid %s: %v\n", ExitCodeEnv, err)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "exiting early with status %d\n", code)
		return code
	}

	fs := flag.NewFlagSet("stripe-mock", flag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.Int("http-port", 12111, "port to listen on for HTTP")
	spec := fs.String("spec", "", "path to the OpenAPI specification")
	fixtures := fs.String("fixtures", "", "path to the fixtures file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	signals := []os.Signal{os.Interrupt}
	if os.Getenv(IgnoreTermEnv) != "" {
		signal.Ignore(syscall.SIGTERM)
	} else {
		signals = append(signals, syscall.SIGTERM)
	}
	ctx, stop := signal.NotifyContext(ctx, signals...)
	defer stop()

	srv, err := NewServer(&Config{
		Listen:       fmt.Sprintf("127.0.0.1:%d", *port),
		SpecPath:     *spec,
		FixturesPath: *fixtures,
	}, WithLogger(logger))
	if err != nil {
		logger.Error("Invalid configuration.", slog.Any("err", err))
		return 1
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("Server failed.", slog.Any("err", err))
		return 1
	}
	return 0
}
