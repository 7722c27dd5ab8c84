package db

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	// sqlx only knows the mattn driver name for sqlite.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to the database named by url using driver ("pgx" or "sqlite").
func Open(ctx context.Context, driver, url string) (*sqlx.DB, error) {
	dsn := url
	if driver == "sqlite" {
		dsn = sqliteDSN(url)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// a single writer keeps sqlite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func sqliteDSN(url string) string {
	dsn := strings.TrimPrefix(url, "sqlite://")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

func WithTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
