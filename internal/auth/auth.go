// Package auth implements the account store, authentication and session
// lifecycle for the demo platform.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cryptonova/tradesim/internal/models"
	"github.com/cryptonova/tradesim/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Error categories surfaced to users. Messages on rejected operations may
// differ from the sentinels below; match with errors.Is.
var (
	ErrValidation         = &models.UserError{Code: "validation", Message: "All fields are required."}
	ErrDuplicateAccount   = &models.UserError{Code: "duplicate_account", Message: "An account with this email already exists."}
	ErrNotFound           = &models.UserError{Code: "not_found", Message: "No account found with this email."}
	ErrInvalidCredentials = &models.UserError{Code: "invalid_credentials", Message: "Incorrect password."}
)

func validationError(msg string) error {
	return &models.UserError{Code: "validation", Message: msg}
}

// Service handles signup, login and session state, and exposes save/load
// hooks for wallet snapshots scoped to the current session.
type Service struct {
	kv     store.KV
	log    *zap.SugaredLogger
	secret []byte
}

// NewService creates an auth service on top of the given key-value store.
func NewService(kv store.KV, log *zap.SugaredLogger, secret string) *Service {
	return &Service{kv: kv, log: log, secret: []byte(secret)}
}

// SignUp creates an account with a fresh wallet and establishes a session.
// Passwords are stored as bcrypt hashes; the original demo kept them in
// plain text, which is not preserved here.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (*models.Session, error) {
	if name == "" || email == "" || password == "" {
		return nil, validationError("All fields are required.")
	}
	if len(password) < 6 {
		return nil, validationError("Password must be at least 6 characters.")
	}

	accounts, err := s.accounts(ctx)
	if err != nil {
		return nil, err
	}
	if _, exists := accounts[email]; exists {
		return nil, ErrDuplicateAccount
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := models.Account{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
		Wallet:       models.NewWallet(),
	}
	accounts[email] = account
	if err := s.saveAccounts(ctx, accounts); err != nil {
		return nil, err
	}

	session := &models.Session{Name: name, Email: email, CreatedAt: account.CreatedAt}
	if err := s.setSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Login verifies credentials and replaces any persisted session. Failed
// attempts leave the session untouched.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Session, error) {
	if email == "" || password == "" {
		return nil, validationError("Email and password are required.")
	}

	accounts, err := s.accounts(ctx)
	if err != nil {
		return nil, err
	}
	account, ok := accounts[email]
	if !ok {
		return nil, ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	session := &models.Session{Name: account.Name, Email: email, CreatedAt: account.CreatedAt}
	if err := s.setSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout clears the persisted session. Idempotent.
func (s *Service) Logout(ctx context.Context) error {
	return s.kv.Delete(ctx, store.SessionKey)
}

// CurrentSession returns the persisted session, or nil when no user is
// authenticated. Corrupt session state is treated as no session.
func (s *Service) CurrentSession(ctx context.Context) *models.Session {
	raw, ok, err := s.kv.Get(ctx, store.SessionKey)
	if err != nil || !ok {
		return nil
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		s.log.Debugw("discarding unreadable session record", "error", err)
		return nil
	}
	return &session
}

// SaveWallet overwrites the wallet of the session's account. No-op when no
// session is active. The whole accounts collection is rewritten.
func (s *Service) SaveWallet(ctx context.Context, wallet models.Wallet) error {
	session := s.CurrentSession(ctx)
	if session == nil {
		return nil
	}

	accounts, err := s.accounts(ctx)
	if err != nil {
		return err
	}
	account, ok := accounts[session.Email]
	if !ok {
		return nil
	}
	account.Wallet = wallet
	accounts[session.Email] = account
	return s.saveAccounts(ctx, accounts)
}

// LoadWallet returns the stored wallet of the session's account, or nil
// when no session is active or the account record is missing.
func (s *Service) LoadWallet(ctx context.Context) *models.Wallet {
	session := s.CurrentSession(ctx)
	if session == nil {
		return nil
	}

	accounts, err := s.accounts(ctx)
	if err != nil {
		return nil
	}
	account, ok := accounts[session.Email]
	if !ok {
		return nil
	}
	wallet := account.Wallet.Clone()
	return &wallet
}

// IssueToken generates a JWT carrying the account email for the HTTP
// surface. The key-value session record stays the source of truth.
func (s *Service) IssueToken(email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken extracts the account email from a JWT.
func (s *Service) ParseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return "", fmt.Errorf("token has no email claim")
	}
	return email, nil
}

// accounts loads the accounts collection. A missing or unreadable record
// degrades to an empty collection.
func (s *Service) accounts(ctx context.Context) (map[string]models.Account, error) {
	raw, ok, err := s.kv.Get(ctx, store.AccountsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	accounts := make(map[string]models.Account)
	if !ok {
		return accounts, nil
	}
	if err := json.Unmarshal(raw, &accounts); err != nil {
		s.log.Warnw("discarding unreadable accounts record", "error", err)
		return make(map[string]models.Account), nil
	}
	return accounts, nil
}

func (s *Service) saveAccounts(ctx context.Context, accounts map[string]models.Account) error {
	raw, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}
	if err := s.kv.Set(ctx, store.AccountsKey, raw); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	return nil
}

func (s *Service) setSession(ctx context.Context, session *models.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.kv.Set(ctx, store.SessionKey, raw); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
