package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PostgresStore keeps balances in the balances table of the container DB.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the balances table when missing.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS balances (
			user_id    TEXT PRIMARY KEY,
			amount     NUMERIC(20, 2) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, user string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := p.db.QueryRowContext(ctx, `SELECT amount FROM balances WHERE user_id = $1`, user).Scan(&amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return amount, nil
}

func (p *PostgresStore) Set(ctx context.Context, user string, amount decimal.Decimal) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE balances SET amount = $2, updated_at = now() WHERE user_id = $1`,
		user, amount.StringFixed(2))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (p *PostgresStore) Put(ctx context.Context, user string, amount decimal.Decimal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()`,
		user, amount.StringFixed(2))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Users lists every account ordered by id.
func (p *PostgresStore) Users() ([]string, error) {
	rows, err := p.db.Query(`SELECT user_id FROM balances ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
