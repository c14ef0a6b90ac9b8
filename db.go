package rgs

import (
	"database/sql"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNoDatabase is returned when DATABASE_URL is not set.
var ErrNoDatabase = errors.New("rgs: DATABASE_URL not set")

var (
	dbOnce sync.Once
	dbConn *sql.DB
	dbErr  error
)

// GetDB opens the shared Postgres pool once, from DATABASE_URL. The balance
// store and the game catalog both use it.
func GetDB() (*sql.DB, error) {
	dbOnce.Do(func() {
		dbConn, dbErr = OpenDB(os.Getenv("DATABASE_URL"))
	})
	return dbConn, dbErr
}

// OpenDB opens and pings a pool for dsn.
func OpenDB(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, ErrNoDatabase
	}
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Simple protocol keeps PgBouncer-style poolers happy (no server-side prepared statements).
	config.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	db := stdlib.OpenDB(*config)
	db.SetConnMaxIdleTime(4 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
