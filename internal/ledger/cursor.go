package ledger

import (
	"context"
	"fmt"
)

// Cursor is a read position into one account's log. Any number of cursors may
// follow the same account, but a single Cursor must not be shared between
// goroutines.
type Cursor struct {
	account *Account
	pos     int
}

// Account returns the account the cursor follows.
func (c *Cursor) Account() *Account {
	return c.account
}

// Position returns how many transactions of the log precede the next one
// Next will return.
func (c *Cursor) Position() int {
	return c.pos
}

// Next blocks until the account has a transaction past the cursor position,
// returns it and advances. If ctx ends first, Next returns an error wrapping
// ctx.Err() and the position is unchanged. A transaction that is already
// available is returned even when ctx is done.
func (c *Cursor) Next(ctx context.Context) (Transaction, error) {
	a := c.account
	a.mu.Lock()
	for c.pos >= len(a.log) {
		changed := a.changed
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return Transaction{}, fmt.Errorf("wait for transaction on %s: %w", a.name, ctx.Err())
		case <-changed:
		}

		a.mu.Lock()
	}
	tx := a.log[c.pos]
	c.pos++
	a.mu.Unlock()
	return tx, nil
}
