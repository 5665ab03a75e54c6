package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/bank/internal/ledger"
	"github.com/congo-pay/bank/internal/payments"
)

// Options sizes a simulated workload.
type Options struct {
	Accounts  int
	Transfers int
	Workers   int
	MaxAmount int64
	Seed      uint64
}

// Report summarises a simulation run.
type Report struct {
	Accounts      int            `json:"accounts"`
	Attempted     int            `json:"attempted"`
	Completed     int            `json:"completed"`
	Rejected      map[string]int `json:"rejected"`
	TotalBalance  int64          `json:"total_balance"`
	ExpectedTotal int64          `json:"expected_total"`
	Observed      int64          `json:"observed"`
	Duration      time.Duration  `json:"duration"`
}

// Balanced reports whether money was conserved and every committed leg was
// seen by a monitor.
func (r Report) Balanced() bool {
	return r.TotalBalance == r.ExpectedTotal && r.Observed == int64(2*r.Completed)
}

type workerStats struct {
	attempted int
	completed int
	rejected  map[string]int
}

// Run opens opts.Accounts accounts, spreads opts.Transfers random transfers
// across opts.Workers goroutines and follows every account with a monitor.
// Ledger rejections are expected and counted. If ctx ends early the partial
// report is returned with the context error.
func Run(ctx context.Context, svc *payments.Service, opts Options) (Report, error) {
	if opts.Accounts < 2 {
		return Report{}, fmt.Errorf("need at least 2 accounts, got %d", opts.Accounts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAmount < 1 {
		opts.MaxAmount = 1
	}

	start := time.Now()
	names := make([]string, opts.Accounts)
	var expected int64
	for i := range names {
		names[i] = fmt.Sprintf("account-%03d", i)
		expected += svc.Balance(names[i])
	}

	var observed atomic.Int64
	monitorCtx, stopMonitors := context.WithCancel(ctx)
	defer stopMonitors()
	var monitors errgroup.Group
	for _, name := range names {
		cursor := svc.Account(name).Open()
		monitors.Go(func() error {
			return svc.Monitor(monitorCtx, cursor, func(ledger.Transaction) error {
				observed.Add(1)
				return nil
			})
		})
	}

	stats := make([]workerStats, opts.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Workers; w++ {
		share := opts.Transfers / opts.Workers
		if w < opts.Transfers%opts.Workers {
			share++
		}
		st := &stats[w]
		st.rejected = make(map[string]int)
		rng := rand.New(rand.NewPCG(opts.Seed, uint64(w)))

		g.Go(func() error {
			for i := 0; i < share; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				from := names[rng.IntN(len(names))]
				to := names[rng.IntN(len(names))]
				amount := rng.Int64N(opts.MaxAmount) + 1

				st.attempted++
				_, err := svc.Transfer(gctx, payments.TransferInput{
					From:    from,
					To:      to,
					Amount:  amount,
					Comment: fmt.Sprintf("simulated transfer %d/%d", w, i),
				})
				switch {
				case err == nil:
					st.completed++
				case errors.Is(err, ledger.ErrSelfTransfer), errors.Is(err, ledger.ErrInsufficientFunds):
					st.rejected[payments.Outcome(err)]++
				default:
					return err
				}
			}
			return nil
		})
	}
	runErr := g.Wait()

	// Next still returns transactions that are already logged after the
	// context ends, so monitors drain every committed leg before stopping.
	stopMonitors()
	if err := monitors.Wait(); err != nil && runErr == nil {
		runErr = err
	}

	report := Report{
		Accounts:      opts.Accounts,
		Rejected:      make(map[string]int),
		ExpectedTotal: expected,
		Observed:      observed.Load(),
	}
	for _, st := range stats {
		report.Attempted += st.attempted
		report.Completed += st.completed
		for outcome, n := range st.rejected {
			report.Rejected[outcome] += n
		}
	}
	for _, name := range names {
		report.TotalBalance += svc.Balance(name)
	}
	report.Duration = time.Since(start)
	return report, runErr
}
