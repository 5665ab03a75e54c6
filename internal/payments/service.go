package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/bank/internal/ledger"
	"github.com/congo-pay/bank/internal/logging"
	"github.com/congo-pay/bank/internal/metrics"
	"github.com/congo-pay/bank/internal/notification"
)

// Service exposes name-based ledger operations and reports on them through
// logs, metrics and notifications.
type Service struct {
	ledger   *ledger.Ledger
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService constructs a payment service. notifier, m and logger may be nil.
func NewService(l *ledger.Ledger, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{ledger: l, notifier: notifier, metrics: m, logger: logger}
}

// TransferInput captures the data needed to move funds between accounts.
type TransferInput struct {
	From    string
	To      string
	Amount  int64
	Comment string
}

// Statement is a consistent view of an account's recent history.
type Statement struct {
	Account      string
	Balance      int64
	Transactions []ledger.Transaction
	// Total is the full log length; Transactions may hold only its tail.
	Total int
}

// AccountSummary is one line of the account listing.
type AccountSummary struct {
	Name         string
	Balance      int64
	Transactions int
}

// Account returns the named account, opening it when needed.
func (s *Service) Account(name string) *ledger.Account {
	return s.ledger.GetOrCreate(name)
}

// Balance returns the balance of the named account.
func (s *Service) Balance(name string) int64 {
	return s.ledger.GetOrCreate(name).Balance()
}

// Accounts lists every account in name order. Each entry is read on its own,
// so the list is not a single point-in-time view of the ledger.
func (s *Service) Accounts() []AccountSummary {
	names := s.ledger.Names()
	summaries := make([]AccountSummary, 0, len(names))
	for _, name := range names {
		acct, ok := s.ledger.Lookup(name)
		if !ok {
			continue
		}
		summaries = append(summaries, AccountSummary{
			Name:         name,
			Balance:      acct.Balance(),
			Transactions: acct.Len(),
		})
	}
	return summaries
}

// OpeningBalance reports the deposit every new account starts with.
func (s *Service) OpeningBalance() int64 {
	return s.ledger.OpeningBalance()
}

// Transfer moves funds between two named accounts. The receiver is opened on
// demand, but a non-positive amount is rejected before any account is opened.
// Notification failures are logged and never undo a transfer.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (ledger.TransferResult, error) {
	var res ledger.TransferResult
	var err error
	if input.Amount <= 0 {
		err = ledger.ErrInvalidAmount
	} else {
		from := s.ledger.GetOrCreate(input.From)
		to := s.ledger.GetOrCreate(input.To)
		res, err = from.Transfer(to, input.Amount, input.Comment)
	}
	if err != nil {
		s.metrics.RecordTransfer(Outcome(err), input.Amount)
		s.logger.Warn("transfer rejected",
			"from", input.From,
			"to", input.To,
			"amount", input.Amount,
			"error", err,
		)
		return ledger.TransferResult{}, err
	}

	s.metrics.RecordTransfer(metrics.OutcomeCompleted, input.Amount)
	s.logger.Info("transfer completed",
		"transfer_id", res.TransferID.String(),
		"from", input.From,
		"to", input.To,
		"amount", input.Amount,
		"from_balance", res.FromBalance,
		"to_balance", res.ToBalance,
	)

	s.notify(ctx, notification.Message{
		Kind:         notification.KindTransferReceived,
		Destination:  input.To,
		Counterparty: input.From,
		Amount:       input.Amount,
		Comment:      input.Comment,
		TransferID:   res.TransferID.String(),
		Body:         fmt.Sprintf("You received %d XTS from %s", input.Amount, input.From),
	})
	s.notify(ctx, notification.Message{
		Kind:         notification.KindTransferSent,
		Destination:  input.From,
		Counterparty: input.To,
		Amount:       input.Amount,
		Comment:      input.Comment,
		TransferID:   res.TransferID.String(),
		Body:         fmt.Sprintf("You sent %d XTS to %s", input.Amount, input.To),
	})

	return res, nil
}

// Statement returns the last limit transactions of the named account with its
// balance, and a cursor positioned right after them. limit <= 0 returns the
// whole log.
func (s *Service) Statement(name string, limit int) (Statement, *ledger.Cursor) {
	st := Statement{Account: name}
	cursor := s.ledger.GetOrCreate(name).Snapshot(func(log []ledger.Transaction, balance int64) {
		st.Balance = balance
		st.Total = len(log)
		if limit > 0 && limit < len(log) {
			log = log[len(log)-limit:]
		}
		st.Transactions = log
	})
	return st, cursor
}

// Monitor hands every transaction from cursor to fn until ctx ends or fn
// fails. The end of ctx is a normal stop and yields nil.
func (s *Service) Monitor(ctx context.Context, cursor *ledger.Cursor, fn func(ledger.Transaction) error) error {
	s.metrics.MonitorStarted()
	defer s.metrics.MonitorStopped()

	name := cursor.Account().Name()
	s.logger.Debug("monitor started", "account", name, "position", cursor.Position())
	defer func() {
		s.logger.Debug("monitor stopped", "account", name, "position", cursor.Position())
	}()

	for {
		tx, err := cursor.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.metrics.RecordMonitorEvent()
		if err := fn(tx); err != nil {
			return err
		}
	}
}

// Outcome maps a transfer error to its metrics label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCompleted
	case errors.Is(err, ledger.ErrInvalidAmount):
		return metrics.OutcomeInvalidAmount
	case errors.Is(err, ledger.ErrSelfTransfer):
		return metrics.OutcomeSelfTransfer
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return metrics.OutcomeInsufficientFunds
	default:
		return metrics.OutcomeError
	}
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.metrics.RecordNotificationFailure(msg.Kind)
		s.logger.Warn("notification failed", "kind", msg.Kind, "destination", msg.Destination, "error", err)
	}
}
