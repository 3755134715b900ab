package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophaccount/internal/common"
	"github.com/dmitrijs2005/gophaccount/internal/dbx"
	"github.com/dmitrijs2005/gophaccount/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx) with the pgx stdlib driver.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query :=
		`SELECT id::text, given_name, family_name, username, email, password_hash, verification_token, verified, status, created_at
		 FROM accounts
		 WHERE email = $1
		 `
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(username) = lower($1))
		 `

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (given_name, family_name, username, email, password_hash, verification_token, verified, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id::text, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		account.GivenName, nullString(account.FamilyName), account.Username, account.Email,
		account.PasswordHash, nullStringPtr(account.VerificationToken), account.Verified, int(account.Status),
	).Scan(&account.ID, &account.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, &common.UniqueViolationError{
				Field:      fieldForConstraint(pgErr.ConstraintName),
				Constraint: pgErr.ConstraintName,
				Err:        err,
			}
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}

	query :=
		`UPDATE accounts
		 SET verified = TRUE, status = 1, verification_token = NULL
		 WHERE verification_token = $1
		 RETURNING id::text, given_name, family_name, username, email, password_hash, verification_token, verified, status, created_at
		 `
	return scanAccount(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) FindActiveByEmail(ctx context.Context, email string) (*models.Account, error) {
	query :=
		`SELECT id::text, given_name, family_name, username, email, password_hash, verification_token, verified, status, created_at
		 FROM accounts
		 WHERE email = $1 AND verified = TRUE AND status = 1
		 `
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}
