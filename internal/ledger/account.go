package ledger

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transaction is one immutable entry of an account log.
type Transaction struct {
	// TransferID is shared by the debit and credit legs of a transfer.
	TransferID uuid.UUID
	// Counterparty is nil for the opening deposit.
	Counterparty *Account
	Delta        int64
	Comment      string
	CreatedAt    time.Time
}

// CounterpartyName returns the counterparty's name, or "" for the opening deposit.
func (t Transaction) CounterpartyName() string {
	if t.Counterparty == nil {
		return ""
	}
	return t.Counterparty.Name()
}

// TransferResult captures the outcome of a committed transfer.
type TransferResult struct {
	TransferID  uuid.UUID
	FromBalance int64
	ToBalance   int64
	CompletedAt time.Time
}

// Account holds a balance and its append-only transaction log. Handles are
// owned by the Ledger that created them.
type Account struct {
	name  string
	owner *Ledger

	mu      sync.Mutex
	balance int64
	log     []Transaction
	// changed is closed and replaced on every append to wake waiting cursors.
	changed chan struct{}
}

func newAccount(owner *Ledger, name string) *Account {
	a := &Account{
		name:    name,
		owner:   owner,
		balance: owner.openingBalance,
		changed: make(chan struct{}),
	}
	a.mu.Lock()
	a.appendTransaction(nil, owner.openingBalance, "Initial deposit for "+name, uuid.New(), owner.now())
	a.mu.Unlock()
	return a
}

// Name returns the account's immutable name.
func (a *Account) Name() string {
	return a.name
}

// Balance returns the current balance in XTS.
func (a *Account) Balance() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Len returns the number of transactions in the log.
func (a *Account) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.log)
}

// Transfer moves amount XTS from a to to. Both legs are applied and logged
// while both account locks are held, so no observer sees one without the
// other. Rejected transfers leave both accounts untouched.
func (a *Account) Transfer(to *Account, amount int64, comment string) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	if to == a {
		return TransferResult{}, ErrSelfTransfer
	}

	unlock := lockPair(a, to)
	defer unlock()

	if amount > a.balance {
		return TransferResult{}, &InsufficientFundsError{Available: a.balance, Requested: amount}
	}

	id := uuid.New()
	now := a.owner.now()

	a.balance -= amount
	to.balance += amount
	a.appendTransaction(to, -amount, comment, id, now)
	to.appendTransaction(a, amount, comment, id, now)

	return TransferResult{
		TransferID:  id,
		FromBalance: a.balance,
		ToBalance:   to.balance,
		CompletedAt: now,
	}, nil
}

// Open returns a cursor that yields every transaction appended after this call.
func (a *Account) Open() *Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &Cursor{account: a, pos: len(a.log)}
}

// Snapshot calls view with a copy of the log and the balance, then returns a
// cursor positioned right after the last transaction view saw. No transaction
// can land between the snapshot and the cursor start. view must not call
// back into a.
func (a *Account) Snapshot(view func(log []Transaction, balance int64)) *Cursor {
	a.mu.Lock()
	defer a.mu.Unlock()
	view(slices.Clone(a.log), a.balance)
	return &Cursor{account: a, pos: len(a.log)}
}

// appendTransaction must be called with a.mu held.
func (a *Account) appendTransaction(counterparty *Account, delta int64, comment string, id uuid.UUID, at time.Time) {
	a.log = append(a.log, Transaction{
		TransferID:   id,
		Counterparty: counterparty,
		Delta:        delta,
		Comment:      comment,
		CreatedAt:    at,
	})
	close(a.changed)
	a.changed = make(chan struct{})
}

// lockPair locks both accounts, always in the same order for a given pair,
// and returns the function that releases them.
func lockPair(a, b *Account) func() {
	first, second := a, b
	if lockBefore(b, a) {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// lockBefore orders accounts by name. Names are unique within a ledger, so
// the owning ledger id only breaks ties across ledgers.
func lockBefore(a, b *Account) bool {
	if a.name != b.name {
		return a.name < b.name
	}
	return a.owner.id < b.owner.id
}
