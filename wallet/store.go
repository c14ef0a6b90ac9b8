// Package wallet holds the Balance Store implementations and the Ledger that
// performs atomic per-user debits and credits on top of them.
package wallet

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound      = errors.New("wallet: user not found")
	ErrUnavailable       = errors.New("wallet: balance store unavailable")
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrInvalidAmount     = errors.New("wallet: amount must be positive")
)

// Store is the persisted balance ledger. Amounts are rounded to 2 places by
// the caller. Implementations wrap transport or storage failures in
// ErrUnavailable.
type Store interface {
	Get(ctx context.Context, user string) (decimal.Decimal, error)
	Set(ctx context.Context, user string, amount decimal.Decimal) error
}

// Registrar is implemented by stores that can create accounts.
type Registrar interface {
	Put(ctx context.Context, user string, amount decimal.Decimal) error
}

// Lister is implemented by stores that can enumerate their accounts.
type Lister interface {
	Users() ([]string, error)
}

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[string]decimal.Decimal)}
}

func (m *Memory) Get(_ context.Context, user string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.balances[user]
	if !ok {
		return decimal.Zero, ErrUserNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, user string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[user]; !ok {
		return ErrUserNotFound
	}
	m.balances[user] = amount
	return nil
}

// Put creates or overwrites the balance of user.
func (m *Memory) Put(_ context.Context, user string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[user] = amount
	return nil
}

// Users returns the known user ids, sorted.
func (m *Memory) Users() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.balances))
	for u := range m.balances {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}
