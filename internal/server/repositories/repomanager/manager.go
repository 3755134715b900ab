package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/gophaccount/internal/dbx"
	"github.com/dmitrijs2005/gophaccount/internal/server/config"
	"github.com/dmitrijs2005/gophaccount/internal/server/repositories/accounts"
	"github.com/pressly/goose/v3"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
}

// memoryDSN is a private in-process SQLite database. It lives as long as
// the single pooled connection does.
const memoryDSN = ":memory:"

// gooseUp is a seam for testing the goose provider.
var gooseUp = func(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS) error {
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	return err
}

func runMigrations(ctx context.Context, dialect goose.Dialect, db *sql.DB, fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return fmt.Errorf("migrations %s: %w", dir, err)
	}
	if err := gooseUp(ctx, dialect, db, sub); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Open connects to the store selected by driver, migrates it to the latest
// schema and returns the pool with a matching RepositoryManager.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, RepositoryManager, error) {
	var (
		db  *sql.DB
		m   RepositoryManager
		err error
	)

	switch driver {
	case config.StoreDriverPostgres:
		db, err = dbx.Open(ctx, "pgx", dsn, dbx.PoolOptions{MaxOpenConns: 20, MaxIdleConns: 5})
		m = NewPostgresRepositoryManager()
	case config.StoreDriverSQLite:
		db, err = dbx.Open(ctx, "sqlite", dsn, dbx.PoolOptions{MaxOpenConns: 1, MaxIdleConns: 1})
		m = NewSQLiteRepositoryManager()
	case config.StoreDriverMemory:
		db, err = dbx.Open(ctx, "sqlite", memoryDSN, dbx.PoolOptions{MaxOpenConns: 1, MaxIdleConns: 1})
		m = NewSQLiteRepositoryManager()
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, m, nil
}
