package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Ledger serializes read-modify-write per user so a player in two games at
// once never loses an update.
type Ledger struct {
	store Store

	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock is dropped from locks once no caller holds or waits on it.
type userLock struct {
	sync.Mutex
	refs int
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, locks: make(map[string]*userLock)}
}

// Store returns the underlying Balance Store.
func (l *Ledger) Store() Store { return l.store }

func (l *Ledger) lock(user string) func() {
	l.mu.Lock()
	m, ok := l.locks[user]
	if !ok {
		m = &userLock{}
		l.locks[user] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(l.locks, user)
		}
		l.mu.Unlock()
	}
}

// Balance reads the current balance of user.
func (l *Ledger) Balance(ctx context.Context, user string) (decimal.Decimal, error) {
	return l.store.Get(ctx, user)
}

// Debit subtracts amount from user and returns the new balance. It fails with
// ErrInsufficientFunds without touching the store when the balance is short.
func (l *Ledger) Debit(ctx context.Context, user string, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	unlock := l.lock(user)
	defer unlock()

	bal, err := l.store.Get(ctx, user)
	if err != nil {
		return decimal.Zero, err
	}
	if bal.LessThan(amount) {
		return bal, ErrInsufficientFunds
	}
	next := bal.Sub(amount).Round(2)
	if err := l.store.Set(ctx, user, next); err != nil {
		return decimal.Zero, fmt.Errorf("debit %s %s: %w", user, amount, err)
	}
	return next, nil
}

// Credit adds amount to user and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, user string, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = amount.Round(2)
	if amount.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	unlock := l.lock(user)
	defer unlock()

	bal, err := l.store.Get(ctx, user)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsZero() {
		return bal, nil
	}
	next := bal.Add(amount).Round(2)
	if err := l.store.Set(ctx, user, next); err != nil {
		return decimal.Zero, fmt.Errorf("credit %s %s: %w", user, amount, err)
	}
	return next, nil
}

// Register creates or resets an account. The store must implement Registrar.
func (l *Ledger) Register(ctx context.Context, user string, amount decimal.Decimal) error {
	reg, ok := l.store.(Registrar)
	if !ok {
		return fmt.Errorf("wallet: %T cannot create accounts", l.store)
	}
	unlock := l.lock(user)
	defer unlock()
	return reg.Put(ctx, user, amount.Round(2))
}
