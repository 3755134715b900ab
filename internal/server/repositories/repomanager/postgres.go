// Package repomanager vends account repositories for the configured store
// and migrates its schema with goose.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophaccount/internal/dbx"
	"github.com/dmitrijs2005/gophaccount/internal/server/migrations"
	"github.com/dmitrijs2005/gophaccount/internal/server/repositories/accounts"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories.
type PostgresRepositoryManager struct{}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

// Accounts returns an accounts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

// RunMigrations applies the embedded PostgreSQL migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return runMigrations(ctx, goose.DialectPostgres, db, migrations.Migrations, migrations.PostgresDir)
}
