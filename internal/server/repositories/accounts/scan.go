package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophaccount/internal/common"
	"github.com/dmitrijs2005/gophaccount/internal/server/models"
)

// Constraint and index names created by the migrations.
const (
	constraintEmail    = "accounts_email_unique"
	constraintUsername = "accounts_username_lower_unique"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a          models.Account
		familyName sql.NullString
		token      sql.NullString
		status     int
	)

	err := row.Scan(&a.ID, &a.GivenName, &familyName, &a.Username, &a.Email,
		&a.PasswordHash, &token, &a.Verified, &status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	a.FamilyName = familyName.String
	if token.Valid {
		a.VerificationToken = &token.String
	}
	a.Status = models.AccountStatus(status)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fieldForConstraint maps a constraint name, or SQLite's "table.column"
// description, to the account field it guards.
func fieldForConstraint(constraint string) string {
	switch {
	case constraint == constraintEmail, constraint == "accounts.email":
		return common.FieldEmail
	case constraint == constraintUsername, constraint == "accounts.username":
		return common.FieldUsername
	default:
		return ""
	}
}

// sqliteConstraint extracts what SQLite names in a unique violation message:
// "UNIQUE constraint failed: accounts.email" or
// "UNIQUE constraint failed: index 'accounts_username_lower_unique'".
func sqliteConstraint(msg string) string {
	const marker = "UNIQUE constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if j := strings.Index(rest, " ("); j >= 0 {
		rest = rest[:j]
	}
	rest = strings.TrimPrefix(rest, "index ")
	return strings.Trim(strings.TrimSpace(rest), "'\"")
}
