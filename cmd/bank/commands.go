package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/urfave/cli/v2"

	"github.com/congo-pay/bank/internal/config"
	"github.com/congo-pay/bank/internal/console"
	"github.com/congo-pay/bank/internal/infra"
	"github.com/congo-pay/bank/internal/ledger"
	"github.com/congo-pay/bank/internal/metrics"
	"github.com/congo-pay/bank/internal/notification"
	"github.com/congo-pay/bank/internal/payments"
	"github.com/congo-pay/bank/internal/simulate"
)

// buildService wires a fresh ledger to its notifier and metrics. The returned
// cleanup releases the Redis connection when one was opened.
func buildService(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*payments.Service, func(), error) {
	m := metrics.NewMetrics(reg)
	l := ledger.New(
		ledger.WithOpeningBalance(cfg.OpeningBalance),
		ledger.WithCreateHook(func(a *ledger.Account) {
			m.RecordAccountOpened()
			logger.Debug("account opened", "account", a.Name(), "balance", cfg.OpeningBalance)
		}),
	)

	cleanup := func() {}
	var notifier notification.Notifier = notification.NewLoggerNotifier(logger)
	if cfg.NotificationsEnabled() {
		client, err := infra.NewNotifierClient(ctx, cfg.RedisURL, cfg.NotifyChannel)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}
		notifier = notification.NewRedisNotifier(client, cfg.NotifyChannel)
		subscribers, err := infra.Subscribers(ctx, client, cfg.NotifyChannel)
		if err != nil {
			logger.Warn("count notification subscribers", "error", err)
		}
		logger.Info("publishing transfer notifications", "channel", cfg.NotifyChannel, "subscribers", subscribers)
	}

	svc := payments.NewService(l, notifier, m, logger)
	logger.Debug("ledger ready", "opening_balance", svc.OpeningBalance())
	return svc, cleanup, nil
}

func consoleCommand(cfg config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "console",
		Usage: "Run an interactive session on stdin/stdout",
		Description: `Commands after login:
   balance
   accounts
   transactions <count>
   monitor <count>
   transfer <to> <amount> <comment>
   quit`,
		Action: func(c *cli.Context) error {
			svc, cleanup, err := buildService(c.Context, cfg, logger, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer cleanup()

			return console.NewSession(svc, cfg.MonitorTimeout).Run(c.Context, c.App.Reader, c.App.Writer)
		},
	}
}

func simulateCommand(cfg config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run concurrent random transfers and verify the ledger balances",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "accounts", Usage: "Number of accounts", Value: 10},
			&cli.IntFlag{Name: "transfers", Usage: "Number of transfers to attempt", Value: 5000},
			&cli.IntFlag{Name: "workers", Usage: "Concurrent transfer goroutines", Value: 8},
			&cli.Int64Flag{Name: "max-amount", Usage: "Largest single transfer in XTS", Value: 50},
			&cli.Uint64Flag{Name: "seed", Usage: "Random seed", Value: 1},
			&cli.BoolFlag{Name: "metrics", Usage: "Print Prometheus metrics after the run"},
			&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output in JSON format"},
		},
		Action: func(c *cli.Context) error {
			reg := prometheus.NewRegistry()
			svc, cleanup, err := buildService(c.Context, cfg, logger, reg)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := simulate.Run(c.Context, svc, simulate.Options{
				Accounts:  c.Int("accounts"),
				Transfers: c.Int("transfers"),
				Workers:   c.Int("workers"),
				MaxAmount: c.Int64("max-amount"),
				Seed:      c.Uint64("seed"),
			})
			if err != nil {
				return err
			}

			w := c.App.Writer
			if c.Bool("json") {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else if err := printReport(w, report); err != nil {
				return err
			}

			if c.Bool("metrics") {
				if err := printMetrics(w, reg); err != nil {
					return err
				}
			}

			if !report.Balanced() {
				return cli.Exit(fmt.Sprintf("ledger not balanced: total %d, expected %d", report.TotalBalance, report.ExpectedTotal), 1)
			}
			return nil
		},
	}
}

func printReport(w io.Writer, r simulate.Report) error {
	outcomes := make([]string, 0, len(r.Rejected))
	for outcome := range r.Rejected {
		outcomes = append(outcomes, outcome)
	}
	sort.Strings(outcomes)

	_, err := fmt.Fprintf(w, "accounts:   %d\nattempted:  %d\ncompleted:  %d\n", r.Accounts, r.Attempted, r.Completed)
	if err != nil {
		return err
	}
	for _, outcome := range outcomes {
		if _, err := fmt.Fprintf(w, "rejected:   %d (%s)\n", r.Rejected[outcome], outcome); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "balance:    %d / %d XTS\nobserved:   %d legs\nduration:   %s\n",
		r.TotalBalance, r.ExpectedTotal, r.Observed, r.Duration)
	return err
}

func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
