package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMemory_SetUnknownUser(t *testing.T) {
	m := NewMemory()
	err := m.Set(context.Background(), "ghost", dec("1"))
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = m.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLedger_DebitCredit(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemory())
	require.NoError(t, l.Register(ctx, "alice", dec("100")))

	bal, err := l.Debit(ctx, "alice", dec("30.004"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("70")), "got %s", bal)

	bal, err = l.Credit(ctx, "alice", dec("245"))
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("315")), "got %s", bal)
}

func TestLedger_DebitRejections(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemory())
	require.NoError(t, l.Register(ctx, "bob", dec("10")))

	_, err := l.Debit(ctx, "bob", dec("10.01"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	_, err = l.Debit(ctx, "bob", dec("0"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = l.Debit(ctx, "carol", dec("1"))
	assert.ErrorIs(t, err, ErrUserNotFound)

	bal, err := l.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("10")))
}

func TestLedger_ConcurrentUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemory())
	require.NoError(t, l.Register(ctx, "alice", dec("1000")))

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = l.Debit(ctx, "alice", dec("1"))
		}()
		go func() {
			defer wg.Done()
			_, _ = l.Credit(ctx, "alice", dec("0.5"))
		}()
	}
	wg.Wait()

	bal, err := l.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("900")), "got %s", bal)
}

func TestLedger_ReleasesIdleUserLocks(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewMemory())
	users := []string{"alice", "bob", "carol", "dave"}
	for _, u := range users {
		require.NoError(t, l.Register(ctx, u, dec("100")))
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		for _, u := range users {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, _ = l.Debit(ctx, u, dec("0.5"))
				_, _ = l.Credit(ctx, u, dec("0.25"))
			}(u)
		}
	}
	wg.Wait()

	l.mu.Lock()
	held := len(l.locks)
	l.mu.Unlock()
	assert.Zero(t, held)
	bal, err := l.Balance(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("75")), "got %s", bal)
}

type flakyStore struct {
	Store
	failSet bool
}

func (f *flakyStore) Set(ctx context.Context, user string, amount decimal.Decimal) error {
	if f.failSet {
		return ErrUnavailable
	}
	return f.Store.Set(ctx, user, amount)
}

func TestLedger_SurfacesUnavailable(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.Put(ctx, "alice", dec("50")))
	l := NewLedger(&flakyStore{Store: mem, failSet: true})

	_, err := l.Credit(ctx, "alice", dec("5"))
	assert.True(t, errors.Is(err, ErrUnavailable))

	err = l.Register(ctx, "bob", dec("1"))
	assert.Error(t, err, "flaky store cannot register accounts")
}
