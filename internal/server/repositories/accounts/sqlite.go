package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/common"
	"github.com/dmitrijs2005/gophaccount/internal/dbx"
	"github.com/dmitrijs2005/gophaccount/internal/server/models"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository implements Repository on modernc.org/sqlite. It backs
// the sqlite and memory store drivers. SQLite has no UUID type, so IDs are
// assigned here.
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	query :=
		`SELECT id, given_name, family_name, username, email, password_hash, verification_token, verified, status, created_at
		 FROM accounts
		 WHERE email = ?
		 `
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *SQLiteRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE lower(username) = lower(?))
		 `

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, account *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (id, given_name, family_name, username, email, password_hash, verification_token, verified, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 `

	id := uuid.NewString()
	createdAt := r.now().UTC().Truncate(time.Second)

	_, err := r.db.ExecContext(ctx, query,
		id, account.GivenName, nullString(account.FamilyName), account.Username, account.Email,
		account.PasswordHash, nullStringPtr(account.VerificationToken), account.Verified, int(account.Status), createdAt,
	)
	if err != nil {
		var sqlErr *sqlite.Error
		if errors.As(err, &sqlErr) && sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			constraint := sqliteConstraint(sqlErr.Error())
			return nil, &common.UniqueViolationError{
				Field:      fieldForConstraint(constraint),
				Constraint: constraint,
				Err:        err,
			}
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	account.ID = id
	account.CreatedAt = createdAt
	return account, nil
}

func (r *SQLiteRepository) ConsumeVerificationToken(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}

	query :=
		`UPDATE accounts
		 SET verified = 1, status = 1, verification_token = NULL
		 WHERE verification_token = ?
		 RETURNING id, given_name, family_name, username, email, password_hash, verification_token, verified, status, created_at
		 `
	return scanAccount(r.db.QueryRowContext(ctx, query, token))
}

func (r *SQLiteRepository) FindActiveByEmail(ctx context.Context, email string) (*models.Account, error) {
	query :=
		`SELECT id, given_name, family_name, username, email, password_hash, verification_token, verified, status, created_at
		 FROM accounts
		 WHERE email = ? AND verified = 1 AND status = 1
		 `
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}
