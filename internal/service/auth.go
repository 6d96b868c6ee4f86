package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"
	"accountmart-api/internal/repository"
	"accountmart-api/internal/service/notify"
	"accountmart-api/pkg/uid"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// OperatorCredentials configure the operator login.
type OperatorCredentials struct {
	Username string
	Password string
	Email    string
}

// AuthConfig holds AuthService settings.
type AuthConfig struct {
	Operator   OperatorCredentials
	BcryptCost int
}

// AuthService handles registration, login and user administration.
type AuthService struct {
	store    repository.Store
	tokens   *TokenService
	notifier notify.Notifier
	config   AuthConfig
	now      Clock

	// dummyHash is compared against when an email is unknown so that
	// response time does not reveal whether an account exists.
	dummyHash []byte
}

// NewAuthService creates an auth service.
func NewAuthService(store repository.Store, tokens *TokenService, notifier notify.Notifier, cfg AuthConfig, now Clock) (*AuthService, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Operator.Email == "" {
		cfg.Operator.Email = "admin@platform.com"
	}
	cfg.Operator.Email = strings.ToLower(strings.TrimSpace(cfg.Operator.Email))

	dummy, err := bcrypt.GenerateFromPassword([]byte("accountmart-timing-guard"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hashing: %w", err)
	}

	return &AuthService{
		store:     store,
		tokens:    tokens,
		notifier:  notifier,
		config:    cfg,
		now:       clockOrDefault(now),
		dummyHash: dummy,
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.InvalidInput("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.InvalidInput("invalid email address")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.InvalidInput("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func (s *AuthService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Register creates a buyer account with a zero balance and signs it in.
func (s *AuthService) Register(ctx context.Context, email, password string) (*model.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, apperr.ErrDuplicateIdentity
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:           uid.New(),
		Email:        email,
		PasswordHash: hash,
		Balance:      decimal.Zero,
		Role:         model.RoleBuyer,
		CreatedAt:    now,
	}
	// The unique index settles races between concurrent registrations.
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("[AuthService] Registered user %s", user.ID)
	recordActivity(ctx, s.store, now, user.ID, model.ActionRegister, email)
	sendNotification(ctx, s.notifier, now, notify.KindRegistration, fmt.Sprintf("New registration: %s", email))

	return s.tokens.Issue(user)
}

// Authenticate signs in with email and password.
// Every failure is reported as apperr.ErrInvalidCredential.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, apperr.ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.ErrInvalidCredential
	}

	return s.tokens.Issue(user)
}

// VerifySession resolves a bearer token into an identity.
func (s *AuthService) VerifySession(token string) (*model.Identity, error) {
	return s.tokens.Verify(token)
}

// RequireRole fails with apperr.ErrForbidden unless identity holds role.
func RequireRole(identity *model.Identity, role model.Role) error {
	if identity == nil {
		return apperr.ErrInvalidSession
	}
	if identity.Role != role {
		return apperr.ErrForbidden
	}
	return nil
}

// OperatorLogin checks the configured operator credentials and signs in as
// the operator user, creating it on first use.
func (s *AuthService) OperatorLogin(ctx context.Context, username, password string) (*model.Session, error) {
	op := s.config.Operator
	if op.Username == "" || op.Password == "" {
		return nil, apperr.ErrInvalidCredential
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(op.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(op.Password)) == 1
	if !userOK || !passOK {
		return nil, apperr.ErrInvalidCredential
	}

	user, err := s.operatorUser(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	recordActivity(ctx, s.store, now, user.ID, model.ActionOperatorLogin, username)
	return s.tokens.Issue(user)
}

func (s *AuthService) operatorUser(ctx context.Context) (*model.User, error) {
	email := s.config.Operator.Email

	user, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		if user.Role != model.RoleOperator {
			return nil, apperr.ErrForbidden
		}
		return user, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hash(s.config.Operator.Password)
	if err != nil {
		return nil, err
	}
	user = &model.User{
		ID:           uid.New(),
		Email:        email,
		PasswordHash: hash,
		Balance:      decimal.Zero,
		Role:         model.RoleOperator,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperr.ErrDuplicateIdentity) {
			// Another login created it first.
			return s.operatorUser(ctx)
		}
		return nil, err
	}

	log.Printf("[AuthService] Created operator user %s", email)
	return user, nil
}

// Profile returns the caller's account.
func (s *AuthService) Profile(ctx context.Context, userID string) (*model.User, error) {
	return s.store.GetUserByID(ctx, userID)
}

// ListUsers lists accounts, optionally filtered by role.
func (s *AuthService) ListUsers(ctx context.Context, role model.Role) ([]model.User, error) {
	if role != "" && !role.Valid() {
		return nil, apperr.InvalidInput("unknown role %q", role)
	}
	return s.store.ListUsers(ctx, role)
}

// ResetPassword replaces a user's password.
func (s *AuthService) ResetPassword(ctx context.Context, operatorID, userID, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	recordActivity(ctx, s.store, s.now(), operatorID, model.ActionPasswordReset, userID)
	return nil
}

// SetBalance overwrites a user's balance.
func (s *AuthService) SetBalance(ctx context.Context, operatorID, userID string, amount decimal.Decimal) (*model.User, error) {
	if amount.IsNegative() {
		return nil, apperr.InvalidInput("balance cannot be negative")
	}
	amount = amount.Round(2)
	if !model.WithinMaxAmount(amount) {
		return nil, apperr.InvalidInput("balance exceeds %s", model.MaxAmount)
	}
	if err := s.store.SetBalance(ctx, userID, amount); err != nil {
		return nil, err
	}
	recordActivity(ctx, s.store, s.now(), operatorID, model.ActionBalanceSet,
		fmt.Sprintf("user=%s balance=%s", userID, amount.StringFixed(2)))
	return s.store.GetUserByID(ctx, userID)
}

// PurgeUser deletes a user with their purchases, payment requests and activity.
func (s *AuthService) PurgeUser(ctx context.Context, operatorID, userID string) error {
	if operatorID == userID {
		return apperr.InvalidInput("operators cannot delete their own account")
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	log.Printf("[AuthService] Purged user %s", userID)
	recordActivity(ctx, s.store, s.now(), operatorID, model.ActionUserPurge, userID)
	return nil
}
