// Package users maps login identities onto credit accounts and issues access
// tokens for them.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"supercv-backend/internal/credits"
	"supercv-backend/internal/shared/auth"
	"supercv-backend/internal/shared/telemetry"
)

const minPasswordLen = 8

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("account not found")
)

// Accounts is the ledger surface identity sync relies on.
type Accounts interface {
	EnsureAccount(ctx context.Context, attrs credits.IdentityAttributes) (credits.Account, bool, error)
	Get(ctx context.Context, accountID string) (credits.Account, error)
	GetByEmail(ctx context.Context, email string) (credits.Account, error)
}

// TokenSigner issues access tokens.
type TokenSigner interface {
	Sign(c auth.Claims) (string, error)
}

// Identity is the profile supplied by an identity provider.
type Identity struct {
	Email     string
	Name      string
	AvatarRef string
}

// Session is an account plus a freshly issued access token.
type Session struct {
	Account credits.Account
	Token   string
	Created bool
}

type Service struct {
	Accounts Accounts
	Tokens   TokenSigner
	cost     int
}

func NewService(accounts Accounts, tokens TokenSigner) *Service {
	return &Service{Accounts: accounts, Tokens: tokens, cost: bcrypt.DefaultCost}
}

// SyncIdentity creates the account on first sight of an email and refreshes the
// profile otherwise.
func (s *Service) SyncIdentity(ctx context.Context, id Identity) (Session, error) {
	acct, created, err := s.Accounts.EnsureAccount(ctx, credits.IdentityAttributes{
		Email:     id.Email,
		Name:      id.Name,
		AvatarRef: id.AvatarRef,
	})
	if err != nil {
		return Session{}, mapLedgerError(err)
	}
	telemetry.Info("users.identity_synced", map[string]any{"account_id": acct.ID, "created": created})
	return s.session(acct, created)
}

// Register creates a password account.
func (s *Service) Register(ctx context.Context, email, password, name string) (Session, error) {
	email = credits.NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return Session{}, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return Session{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if _, err := s.Accounts.GetByEmail(ctx, email); err == nil {
		return Session{}, ErrEmailTaken
	} else if !errors.Is(err, credits.ErrNotFound) {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	acct, created, err := s.Accounts.EnsureAccount(ctx, credits.IdentityAttributes{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
	})
	if err != nil {
		return Session{}, mapLedgerError(err)
	}
	// A concurrent registration or identity sync won the insert.
	if !created {
		return Session{}, ErrEmailTaken
	}
	telemetry.Info("users.registered", map[string]any{"account_id": acct.ID})
	return s.session(acct, true)
}

// Login checks a password against the stored hash.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	acct, err := s.Accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, credits.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if acct.PasswordHash == "" {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	acct, err = s.Accounts.Get(ctx, acct.ID)
	if err != nil {
		return Session{}, mapLedgerError(err)
	}
	return s.session(acct, false)
}

// Me returns the caller's account with the daily refresh applied.
func (s *Service) Me(ctx context.Context, accountID string) (credits.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return credits.Account{}, ErrNotFound
	}
	acct, err := s.Accounts.Get(ctx, accountID)
	if err != nil {
		return credits.Account{}, mapLedgerError(err)
	}
	return acct, nil
}

func (s *Service) session(acct credits.Account, created bool) (Session, error) {
	token, err := s.Tokens.Sign(auth.Claims{
		Sub:     acct.ID,
		Email:   acct.Email,
		Name:    acct.Name,
		Picture: acct.AvatarRef,
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{Account: acct, Token: token, Created: created}, nil
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, credits.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, credits.ErrInvalidInput):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return err
	}
}
