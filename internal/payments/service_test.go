package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/congo-pay/bank/internal/ledger"
	"github.com/congo-pay/bank/internal/logging"
	"github.com/congo-pay/bank/internal/metrics"
	"github.com/congo-pay/bank/internal/notification"
)

type testNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *testNotifier) messages() []notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Message(nil), n.sent...)
}

func newTestService(t *testing.T, notifier notification.Notifier) (*Service, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	svc := NewService(ledger.New(), notifier, metrics.NewMetrics(reg), logging.Discard())
	return svc, reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, labelValue string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue == "" || hasLabelValue(m, labelValue) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabelValue(m *dto.Metric, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestTransferSuccess(t *testing.T) {
	notifier := &testNotifier{}
	svc, reg := newTestService(t, notifier)
	ctx := context.Background()

	res, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 30, Comment: "books"})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if res.FromBalance != 70 || res.ToBalance != 130 {
		t.Fatalf("unexpected balances: %+v", res)
	}
	if svc.Balance("alice") != 70 || svc.Balance("bob") != 130 {
		t.Fatalf("balances not visible through the service")
	}

	msgs := notifier.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected two notifications, got %d", len(msgs))
	}
	if msgs[0].Kind != notification.KindTransferReceived || msgs[0].Destination != "bob" || msgs[0].Amount != 30 {
		t.Fatalf("unexpected receiver notification: %+v", msgs[0])
	}
	if msgs[1].Kind != notification.KindTransferSent || msgs[1].Destination != "alice" {
		t.Fatalf("unexpected sender notification: %+v", msgs[1])
	}
	if msgs[0].TransferID != res.TransferID.String() {
		t.Fatalf("notification carries transfer id %s, expected %s", msgs[0].TransferID, res.TransferID)
	}

	if got := counterValue(t, reg, "bank_transfers_total", metrics.OutcomeCompleted); got != 1 {
		t.Fatalf("expected 1 completed transfer metric, got %v", got)
	}
}

func TestTransferOpensReceiver(t *testing.T) {
	svc, _ := newTestService(t, nil)

	if _, err := svc.Transfer(context.Background(), TransferInput{From: "alice", To: "newcomer", Amount: 10}); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if svc.Balance("newcomer") != 110 {
		t.Fatalf("expected newcomer to hold 110, got %d", svc.Balance("newcomer"))
	}
}

func TestTransferRejected(t *testing.T) {
	notifier := &testNotifier{}
	svc, reg := newTestService(t, notifier)
	ctx := context.Background()

	_, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: 1_000})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if _, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "alice", Amount: 1}); !errors.Is(err, ledger.ErrSelfTransfer) {
		t.Fatalf("expected self transfer error, got %v", err)
	}
	if len(notifier.messages()) != 0 {
		t.Fatal("rejected transfers must not notify")
	}
	if got := counterValue(t, reg, "bank_transfers_total", metrics.OutcomeInsufficientFunds); got != 1 {
		t.Fatalf("expected 1 insufficient funds metric, got %v", got)
	}
	if got := counterValue(t, reg, "bank_transfers_total", metrics.OutcomeSelfTransfer); got != 1 {
		t.Fatalf("expected 1 self transfer metric, got %v", got)
	}
}

func TestTransferSurvivesNotificationFailure(t *testing.T) {
	notifier := &testNotifier{err: errors.New("redis down")}
	svc, reg := newTestService(t, notifier)

	if _, err := svc.Transfer(context.Background(), TransferInput{From: "alice", To: "bob", Amount: 5}); err != nil {
		t.Fatalf("transfer must succeed despite notifier failure: %v", err)
	}
	if svc.Balance("bob") != 105 {
		t.Fatalf("expected bob to hold 105, got %d", svc.Balance("bob"))
	}
	if got := counterValue(t, reg, "bank_notification_failures_total", notification.KindTransferReceived); got != 1 {
		t.Fatalf("expected a recorded notification failure, got %v", got)
	}
}

func TestStatementLimitAndCursor(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		if _, err := svc.Transfer(ctx, TransferInput{From: "alice", To: "bob", Amount: int64(i)}); err != nil {
			t.Fatalf("transfer %d: %v", i, err)
		}
	}

	st, cursor := svc.Statement("alice", 2)
	if st.Total != 5 || len(st.Transactions) != 2 {
		t.Fatalf("expected 2 of 5 transactions, got %d of %d", len(st.Transactions), st.Total)
	}
	if st.Transactions[0].Delta != -3 || st.Transactions[1].Delta != -4 {
		t.Fatalf("expected the last two transfers, got %+v", st.Transactions)
	}
	if st.Balance != 90 {
		t.Fatalf("expected balance 90, got %d", st.Balance)
	}

	full, _ := svc.Statement("alice", 0)
	if len(full.Transactions) != 5 {
		t.Fatalf("expected the full log, got %d", len(full.Transactions))
	}

	if _, err := svc.Transfer(ctx, TransferInput{From: "bob", To: "alice", Amount: 7}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	tx, err := cursor.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if tx.Delta != 7 || tx.CounterpartyName() != "bob" {
		t.Fatalf("cursor should yield the transfer after the statement, got %+v", tx)
	}
}

func TestMonitorStopsWithContext(t *testing.T) {
	svc, reg := newTestService(t, nil)
	_, cursor := svc.Statement("bob", 0)

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan ledger.Transaction, 8)
	done := make(chan error, 1)
	go func() {
		done <- svc.Monitor(ctx, cursor, func(tx ledger.Transaction) error {
			received <- tx
			return nil
		})
	}()

	for i := 1; i <= 3; i++ {
		if _, err := svc.Transfer(context.Background(), TransferInput{From: "alice", To: "bob", Amount: int64(i)}); err != nil {
			t.Fatalf("transfer %d: %v", i, err)
		}
	}
	for i := 1; i <= 3; i++ {
		select {
		case tx := <-received:
			if tx.Delta != int64(i) {
				t.Fatalf("expected delta %d, got %d", i, tx.Delta)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("monitor did not deliver transfer %d", i)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
	if got := counterValue(t, reg, "bank_monitor_events_total", ""); got != 3 {
		t.Fatalf("expected 3 monitor events, got %v", got)
	}
}

func TestMonitorReturnsCallbackError(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, cursor := svc.Statement("bob", 0)
	if _, err := svc.Transfer(context.Background(), TransferInput{From: "alice", To: "bob", Amount: 1}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	stop := errors.New("stop")
	err := svc.Monitor(context.Background(), cursor, func(ledger.Transaction) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		metrics.OutcomeCompleted:         nil,
		metrics.OutcomeInvalidAmount:     ledger.ErrInvalidAmount,
		metrics.OutcomeSelfTransfer:      ledger.ErrSelfTransfer,
		metrics.OutcomeInsufficientFunds: &ledger.InsufficientFundsError{Available: 1, Requested: 2},
		metrics.OutcomeError:             errors.New("boom"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Fatalf("Outcome(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestTransferInvalidAmountOpensNoAccount(t *testing.T) {
	svc, reg := newTestService(t, nil)
	ctx := context.Background()

	for _, amount := range []int64{0, -10} {
		_, err := svc.Transfer(ctx, TransferInput{From: "ghost", To: "phantom", Amount: amount})
		if !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("expected invalid amount for %d, got %v", amount, err)
		}
	}
	if accounts := svc.Accounts(); len(accounts) != 0 {
		t.Fatalf("rejected transfers must not open accounts, got %+v", accounts)
	}
	if got := counterValue(t, reg, "bank_transfers_total", metrics.OutcomeInvalidAmount); got != 2 {
		t.Fatalf("expected 2 invalid amount metrics, got %v", got)
	}
}

func TestAccountsListsSummaries(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if svc.OpeningBalance() != ledger.DefaultOpeningBalance {
		t.Fatalf("expected opening balance %d, got %d", ledger.DefaultOpeningBalance, svc.OpeningBalance())
	}
	if _, err := svc.Transfer(context.Background(), TransferInput{From: "carol", To: "alice", Amount: 25}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	svc.Account("bob")

	want := []AccountSummary{
		{Name: "alice", Balance: 125, Transactions: 2},
		{Name: "bob", Balance: 100, Transactions: 1},
		{Name: "carol", Balance: 75, Transactions: 2},
	}
	got := svc.Accounts()
	if len(got) != len(want) {
		t.Fatalf("expected %d accounts, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("account %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}
