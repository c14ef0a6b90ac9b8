package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, store.Set(ctx, "alice", dec("1")), ErrUserNotFound)

	require.NoError(t, store.Put(ctx, "alice", dec("12.5")))
	require.NoError(t, store.Put(ctx, "bob", dec("3")))
	require.NoError(t, store.Set(ctx, "alice", dec("20.25")))

	bal, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("20.25")), "got %s", bal)

	users, err := store.Users()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)
}

func TestBadgerStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewBadgerStore(dir)
	require.NoError(t, err)
	l := NewLedger(store)
	require.NoError(t, l.Register(ctx, "alice", dec("100")))
	_, err = l.Debit(ctx, "alice", dec("40"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer store.Close()
	bal, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec("60")), "got %s", bal)
}
