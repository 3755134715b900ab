// Package accounts declares the account store contract and its PostgreSQL
// and SQLite implementations.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/gophaccount/internal/server/models"
)

// Repository persists accounts. Implementations enforce uniqueness of email
// (case-sensitive) and username (case-insensitive) at the storage level.
type Repository interface {
	// FindByEmail returns common.ErrorNotFound when no account has email.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// ExistsByUsername compares usernames case-insensitively.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// Insert stores a new account and fills in ID and CreatedAt. A unique
	// constraint hit is reported as *common.UniqueViolationError.
	Insert(ctx context.Context, account *models.Account) (*models.Account, error)

	// ConsumeVerificationToken activates the account holding token in one
	// conditional update and returns it. common.ErrorNotFound means no
	// account holds the token (never issued or already used).
	ConsumeVerificationToken(ctx context.Context, token string) (*models.Account, error)

	// FindActiveByEmail only returns verified, active accounts.
	FindActiveByEmail(ctx context.Context, email string) (*models.Account, error)
}
