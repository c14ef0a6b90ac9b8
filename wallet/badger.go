package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
)

const balancePrefix = "balance/"

// BadgerStore keeps balances in an embedded badger database, one key per user.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func key(user string) []byte {
	return []byte(balancePrefix + user)
}

func readBalance(txn *badger.Txn, user string) (decimal.Decimal, error) {
	item, err := txn.Get(key(user))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decimal.NewFromString(string(val))
}

func (b *BadgerStore) Get(_ context.Context, user string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := b.db.View(func(txn *badger.Txn) error {
		v, err := readBalance(txn, user)
		bal = v
		return err
	})
	return bal, err
}

func (b *BadgerStore) Set(_ context.Context, user string, amount decimal.Decimal) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := readBalance(txn, user); err != nil {
			return err
		}
		return txn.Set(key(user), []byte(amount.StringFixed(2)))
	})
	if err != nil && !errors.Is(err, ErrUserNotFound) && !errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (b *BadgerStore) Put(_ context.Context, user string, amount decimal.Decimal) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(user), []byte(amount.StringFixed(2)))
	})
}

// Users lists every account in key order.
func (b *BadgerStore) Users() ([]string, error) {
	var out []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(balancePrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			out = append(out, string(it.Item().Key()[len(p):]))
		}
		return nil
	})
	return out, err
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
