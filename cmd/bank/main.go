package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/congo-pay/bank/internal/config"
	"github.com/congo-pay/bank/internal/logging"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the console session, so logs go to stderr.
	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp(cfg, logger)
	err = runUntilShutdown(ctx, cfg.ShutdownPeriod, logger, func(ctx context.Context) error {
		return app.RunContext(ctx, os.Args)
	})
	if err != nil {
		logger.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat, w).With("app", cfg.AppName, "env", cfg.AppEnv)
}

// runUntilShutdown runs the command until it returns. Once ctx is cancelled the
// command gets at most period to wind down, including its cleanup.
func runUntilShutdown(ctx context.Context, period time.Duration, logger *slog.Logger, run func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received", "grace_period", period.String())
	}

	timer := time.NewTimer(period)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		return fmt.Errorf("shutdown: command did not stop within %s", period)
	}
}

func newApp(cfg config.Config, logger *slog.Logger) *cli.App {
	return &cli.App{
		Name:  "bank",
		Usage: "In-memory XTS ledger with live transaction monitoring",
		Description: `Every account opens with a deposit of OPENING_BALANCE XTS.

Use "console" for an interactive session and "simulate" to stress the ledger
with concurrent transfers.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			consoleCommand(cfg, logger),
			simulateCommand(cfg, logger),
		},
	}
}
