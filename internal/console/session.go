package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/bank/internal/ledger"
	"github.com/congo-pay/bank/internal/payments"
)

const statementHeader = "CP\tBalance delta\tComment"

// Session serves one user's line-oriented conversation with the bank.
type Session struct {
	svc            *payments.Service
	monitorTimeout time.Duration
}

// NewSession builds a session. A zero monitorTimeout lets monitor run until
// the session context ends.
func NewSession(svc *payments.Service, monitorTimeout time.Duration) *Session {
	return &Session{svc: svc, monitorTimeout: monitorTimeout}
}

// Run asks for the user's name and then executes commands read from r until
// "quit", end of input or the end of ctx. A running monitor stops when the
// next line arrives. Command failures are reported to the user; only I/O
// errors are returned.
func (s *Session) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	in := newLineReader(r)
	defer in.close()

	var name string
	for name == "" {
		if err := write(w, "What is your name?\n"); err != nil {
			return err
		}
		line, err := in.next(ctx)
		if err != nil {
			return endOfInput(ctx, err)
		}
		name = strings.TrimSpace(line)
	}

	account := s.svc.Account(name)
	if err := write(w, "Hi %s\n", account.Name()); err != nil {
		return err
	}

	for {
		line, err := in.next(ctx)
		if err != nil {
			return endOfInput(ctx, err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" {
			return nil
		}
		if err := s.dispatch(ctx, in, w, name, fields); err != nil {
			return err
		}
	}
}

// endOfInput turns the normal ways a session ends into a nil error.
func endOfInput(ctx context.Context, err error) error {
	if errors.Is(err, io.EOF) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Session) dispatch(ctx context.Context, in *lineReader, w io.Writer, name string, fields []string) error {
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "balance":
		return write(w, "%d\n", s.svc.Balance(name))
	case "transactions":
		count, err := parseCount(args)
		if err != nil {
			return write(w, "Error: %v\n", err)
		}
		_, err = s.statement(w, name, count)
		return err
	case "monitor":
		count, err := parseCount(args)
		if err != nil {
			return write(w, "Error: %v\n", err)
		}
		return s.monitor(ctx, in, w, name, count)
	case "transfer":
		return s.transfer(ctx, w, name, args)
	case "accounts":
		return s.accounts(w)
	default:
		return write(w, "Unknown command: %s\n", cmd)
	}
}

func (s *Session) statement(w io.Writer, name string, count int) (*ledger.Cursor, error) {
	var st payments.Statement
	var cursor *ledger.Cursor
	if count == 0 {
		// A zero limit means the whole log to the service; show nothing instead.
		st, cursor = s.svc.Statement(name, 0)
		st.Transactions = nil
	} else {
		st, cursor = s.svc.Statement(name, count)
	}

	if err := write(w, "%s\n", statementHeader); err != nil {
		return nil, err
	}
	for _, tx := range st.Transactions {
		if err := writeTransaction(w, tx); err != nil {
			return nil, err
		}
	}
	if err := write(w, "===== BALANCE: %d XTS =====\n", st.Balance); err != nil {
		return nil, err
	}
	return cursor, nil
}

func (s *Session) monitor(ctx context.Context, in *lineReader, w io.Writer, name string, count int) error {
	cursor, err := s.statement(w, name, count)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.monitorTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.monitorTimeout)
		defer cancelTimeout()
	}

	watching := make(chan struct{})
	go func() {
		defer close(watching)
		if in.interrupted(ctx) {
			cancel()
		}
	}()

	err = s.svc.Monitor(ctx, cursor, func(tx ledger.Transaction) error {
		return writeTransaction(w, tx)
	})
	cancel()
	<-watching
	return err
}

func (s *Session) accounts(w io.Writer) error {
	for _, acct := range s.svc.Accounts() {
		if err := write(w, "%s\t%d\t%d\n", acct.Name, acct.Balance, acct.Transactions); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) transfer(ctx context.Context, w io.Writer, name string, args []string) error {
	if len(args) < 2 {
		return write(w, "Error: usage: transfer <to> <amount> <comment>\n")
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return write(w, "Error: invalid amount %q\n", args[1])
	}

	_, err = s.svc.Transfer(ctx, payments.TransferInput{
		From:    name,
		To:      args[0],
		Amount:  amount,
		Comment: strings.Join(args[2:], " "),
	})
	if err != nil {
		return write(w, "Error: %v\n", err)
	}
	return write(w, "OK\n")
}

func parseCount(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one count argument")
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count < 0 {
		return 0, fmt.Errorf("invalid count %q", args[0])
	}
	return count, nil
}

func writeTransaction(w io.Writer, tx ledger.Transaction) error {
	counterparty := tx.CounterpartyName()
	if tx.Counterparty == nil {
		counterparty = "-"
	}
	return write(w, "%s\t%d\t%s\n", counterparty, tx.Delta, tx.Comment)
}

func write(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
