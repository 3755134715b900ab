// Package services contains server-side business logic. This file implements
// AccountService, which runs the account lifecycle: registration, email
// verification and login.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/common"
	"github.com/dmitrijs2005/gophaccount/internal/dbx"
	"github.com/dmitrijs2005/gophaccount/internal/logging"
	"github.com/dmitrijs2005/gophaccount/internal/server/auth"
	"github.com/dmitrijs2005/gophaccount/internal/server/config"
	"github.com/dmitrijs2005/gophaccount/internal/server/metrics"
	"github.com/dmitrijs2005/gophaccount/internal/server/models"
	"github.com/dmitrijs2005/gophaccount/internal/server/notify"
	"github.com/dmitrijs2005/gophaccount/internal/server/repositories/repomanager"
)

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

type TokenGenerator interface {
	Generate() (string, error)
}

type SessionIssuer interface {
	Issue(account *models.Account) (*auth.Session, error)
}

// Dispatcher queues a notification without waiting for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notify.Message) bool
}

// RegisterInput carries a registration request. FamilyName is optional.
type RegisterInput struct {
	GivenName  string
	FamilyName string
	Username   string
	Email      string
	Password   string
}

// LoginResult is a signed session and the account it was issued for.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// AccountService coordinates the account store, password hashing,
// verification tokens, session issuing and mail dispatch.
type AccountService struct {
	db            dbx.DBTX
	repomanager   repomanager.RepositoryManager
	hasher        PasswordHasher
	tokens        TokenGenerator
	issuer        SessionIssuer
	dispatcher    Dispatcher
	verifyBaseURL string
	logger        logging.Logger
	metrics       *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*AccountService)

func WithHasher(h PasswordHasher) Option         { return func(s *AccountService) { s.hasher = h } }
func WithTokenGenerator(g TokenGenerator) Option { return func(s *AccountService) { s.tokens = g } }
func WithSessionIssuer(i SessionIssuer) Option   { return func(s *AccountService) { s.issuer = i } }
func WithMetrics(m *metrics.Metrics) Option      { return func(s *AccountService) { s.metrics = m } }

// NewAccountService wires the service from server config. Hasher, token
// generator and issuer default to the auth package implementations.
func NewAccountService(db dbx.DBTX, m repomanager.RepositoryManager, cfg *config.Config, d Dispatcher, logger logging.Logger, opts ...Option) *AccountService {
	s := &AccountService{
		db:            db,
		repomanager:   m,
		hasher:        auth.NewPasswordHasher(cfg.BcryptCost),
		tokens:        auth.TokenGenerator{},
		issuer:        auth.NewSessionIssuer(cfg.SecretKey, cfg.AccessTokenValidityDuration),
		dispatcher:    d,
		verifyBaseURL: cfg.VerifyBaseURL,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a pending account and queues its verification mail.
// Pre-checks on email and username only save hashing work; the store's
// unique constraints decide concurrent registrations.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	if strings.TrimSpace(in.GivenName) == "" || strings.TrimSpace(in.Username) == "" ||
		strings.TrimSpace(in.Email) == "" || in.Password == "" {
		s.metrics.ObserveRegistration(metrics.OutcomeInvalid)
		return nil, common.ErrorValidation
	}

	repo := s.repomanager.Accounts(s.db)

	_, err := repo.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		s.metrics.ObserveRegistration(metrics.OutcomeConflict)
		return nil, common.ErrEmailTaken
	case !errors.Is(err, common.ErrorNotFound):
		return nil, s.internal(ctx, s.metrics.ObserveRegistration, "email lookup failed", err)
	}

	taken, err := repo.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, s.internal(ctx, s.metrics.ObserveRegistration, "username lookup failed", err)
	}
	if taken {
		s.metrics.ObserveRegistration(metrics.OutcomeConflict)
		return nil, common.ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.internal(ctx, s.metrics.ObserveRegistration, "password hash failed", err)
	}

	token, err := s.tokens.Generate()
	if err != nil {
		return nil, s.internal(ctx, s.metrics.ObserveRegistration, "token generation failed", err)
	}

	account, err := repo.Insert(ctx, &models.Account{
		GivenName:         in.GivenName,
		FamilyName:        in.FamilyName,
		Username:          in.Username,
		Email:             in.Email,
		PasswordHash:      hash,
		VerificationToken: &token,
		Verified:          false,
		Status:            models.StatusPending,
	})
	if err != nil {
		var uv *common.UniqueViolationError
		if errors.As(err, &uv) {
			switch uv.Field {
			case common.FieldEmail:
				s.metrics.ObserveRegistration(metrics.OutcomeConflict)
				return nil, common.ErrEmailTaken
			case common.FieldUsername:
				s.metrics.ObserveRegistration(metrics.OutcomeConflict)
				return nil, common.ErrUsernameTaken
			}
		}
		return nil, s.internal(ctx, s.metrics.ObserveRegistration, "account insert failed", err)
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID, "email", account.Email)
	s.metrics.ObserveRegistration(metrics.OutcomeOK)

	s.queueVerification(ctx, account.Email, token)
	return account, nil
}

// queueVerification never fails the registration: problems are logged.
func (s *AccountService) queueVerification(ctx context.Context, email, token string) {
	msg, err := notify.VerificationMessage(s.verifyBaseURL, email, token)
	if err != nil {
		s.logger.Error(ctx, "verification mail not built", "email", email, "error", err)
		return
	}
	s.dispatcher.Dispatch(ctx, msg)
}

// Verify consumes token and activates its account. Unknown and already used
// tokens both yield ErrInvalidOrExpiredToken.
func (s *AccountService) Verify(ctx context.Context, token string) (*models.Account, error) {
	repo := s.repomanager.Accounts(s.db)

	account, err := repo.ConsumeVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.ObserveVerification(metrics.OutcomeInvalid)
			return nil, common.ErrInvalidOrExpiredToken
		}
		return nil, s.internal(ctx, s.metrics.ObserveVerification, "token consume failed", err)
	}

	s.logger.Info(ctx, "account verified", "account_id", account.ID)
	s.metrics.ObserveVerification(metrics.OutcomeOK)
	return account, nil
}

// Login checks credentials of a verified account and issues a session.
// Unknown email, unverified account and wrong password are reported the
// same way.
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	repo := s.repomanager.Accounts(s.db)

	account, err := repo.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Spend the same bcrypt time as a real comparison.
			s.hasher.Verify(password, s.dummy())
			s.metrics.ObserveLogin(metrics.OutcomeInvalid)
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.internal(ctx, s.metrics.ObserveLogin, "account lookup failed", err)
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		s.metrics.ObserveLogin(metrics.OutcomeInvalid)
		return nil, common.ErrInvalidCredentials
	}

	session, err := s.issuer.Issue(account)
	if err != nil {
		return nil, s.internal(ctx, s.metrics.ObserveLogin, "session issue failed", err)
	}

	s.metrics.ObserveLogin(metrics.OutcomeOK)
	return &LoginResult{Token: session.Token, ExpiresAt: session.ExpiresAt, Account: account}, nil
}

// --- helpers below ---

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("not-a-real-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func (s *AccountService) internal(ctx context.Context, observe func(outcome string), msg string, err error) error {
	s.logger.Error(ctx, msg, "error", err)
	observe(metrics.OutcomeError)
	return common.ErrorInternal
}
