package service

import (
	"errors"
	"fmt"
	"time"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the lifetime of a session token.
const DefaultSessionTTL = 7 * 24 * time.Hour

// sessionClaims is the signed payload of a session token.
type sessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies stateless HS256 session tokens.
// There is no revocation list; a token is valid until it expires.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    Clock
}

// NewTokenService creates a token service. secret must not be empty.
func NewTokenService(secret string, ttl time.Duration, now Clock) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("session signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: clockOrDefault(now)}, nil
}

// Issue signs a session token for user.
func (s *TokenService) Issue(user *model.User) (*model.Session, error) {
	issued := s.now().Truncate(time.Second)
	expires := issued.Add(s.ttl)

	claims := sessionClaims{
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	return &model.Session{Token: token, ExpiresAt: expires, User: user.Summary()}, nil
}

// Verify checks the signature and expiry of token.
// Returns apperr.ErrExpiredSession or apperr.ErrInvalidSession.
func (s *TokenService) Verify(token string) (*model.Identity, error) {
	if token == "" {
		return nil, apperr.ErrInvalidSession
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	role := model.Role(claims.Role)
	if claims.Subject == "" || !role.Valid() {
		return nil, apperr.ErrInvalidSession
	}

	identity := &model.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return identity, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperr.ErrExpiredSession
	}
	return apperr.ErrInvalidSession
}
