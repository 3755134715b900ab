// Package auth holds the credential primitives: bcrypt password hashing,
// verification token generation and HS256 session tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/common"
	"github.com/dmitrijs2005/gophaccount/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by a session token. iat and exp come from the embedded
// registered claims.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"id"`
	Email     string `json:"email"`
}

// Session is a signed token and the instant it stops being valid.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// SessionIssuer signs session tokens for verified accounts.
type SessionIssuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

func NewSessionIssuer(secret string, validity time.Duration) *SessionIssuer {
	return &SessionIssuer{secret: []byte(secret), validity: validity, now: time.Now}
}

// Issue signs {id, email, iat, exp} for account, exp being iat + validity.
func (s *SessionIssuer) Issue(account *models.Account) (*Session, error) {
	iat := s.now().Truncate(time.Second)
	exp := iat.Add(s.validity)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		AccountID: account.ID,
		Email:     account.Email,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &Session{Token: signed, ExpiresAt: exp}, nil
}

// ParseToken checks signature and expiry and returns the claims.
func (s *SessionIssuer) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
