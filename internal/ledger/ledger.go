package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidAmount occurs when a transfer amount is zero or negative.
	ErrInvalidAmount = errors.New("transfer amount must be positive")

	// ErrSelfTransfer occurs when the sender and receiver are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to yourself")

	// ErrInsufficientFunds occurs when the sender's balance does not cover the
	// requested amount. Transfer returns it wrapped in an InsufficientFundsError.
	ErrInsufficientFunds = errors.New("not enough funds")
)

// DefaultOpeningBalance is the XTS amount deposited into every new account.
const DefaultOpeningBalance int64 = 100

// InsufficientFundsError reports the balance available at the time of a
// rejected transfer together with the amount that was requested.
type InsufficientFundsError struct {
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%s: %d XTS available, %d XTS requested", ErrInsufficientFunds, e.Available, e.Requested)
}

// Is makes errors.Is(err, ErrInsufficientFunds) hold for any InsufficientFundsError.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithOpeningBalance overrides DefaultOpeningBalance.
func WithOpeningBalance(amount int64) Option {
	return func(l *Ledger) { l.openingBalance = amount }
}

// WithClock sets the time source used to stamp transactions.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithCreateHook registers a callback invoked once for every account the
// ledger creates. It runs after the ledger lock has been released.
func WithCreateHook(fn func(*Account)) Option {
	return func(l *Ledger) { l.onCreate = fn }
}

// Ledger owns every account it creates, keyed by name. Its lock guards only
// the account map and is never held together with an account lock.
type Ledger struct {
	id             string
	openingBalance int64
	now            func() time.Time
	onCreate       func(*Account)

	mu       sync.Mutex
	accounts map[string]*Account
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		id:             uuid.NewString(),
		openingBalance: DefaultOpeningBalance,
		now:            func() time.Time { return time.Now().UTC() },
		accounts:       make(map[string]*Account),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GetOrCreate returns the account registered under name, creating it with the
// opening deposit when it does not exist yet. Concurrent callers asking for
// the same new name all receive the same account.
func (l *Ledger) GetOrCreate(name string) *Account {
	l.mu.Lock()
	if acct, ok := l.accounts[name]; ok {
		l.mu.Unlock()
		return acct
	}
	acct := newAccount(l, name)
	l.accounts[name] = acct
	l.mu.Unlock()

	if l.onCreate != nil {
		l.onCreate(acct)
	}
	return acct
}

// Lookup returns the account registered under name without creating it.
func (l *Ledger) Lookup(name string) (*Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[name]
	return acct, ok
}

// Names lists the registered account names in sorted order.
func (l *Ledger) Names() []string {
	l.mu.Lock()
	names := make([]string, 0, len(l.accounts))
	for name := range l.accounts {
		names = append(names, name)
	}
	l.mu.Unlock()

	sort.Strings(names)
	return names
}

// OpeningBalance reports the deposit new accounts start with.
func (l *Ledger) OpeningBalance() int64 {
	return l.openingBalance
}
