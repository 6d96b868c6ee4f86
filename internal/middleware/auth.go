package middleware

import (
	"context"
	"net/http"
	"strings"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"
	"accountmart-api/pkg/response"
)

// IdentityKey is the key for storing the verified session identity in request context.
const IdentityKey contextKey = "identity"

// SessionVerifier resolves a bearer token into an identity.
type SessionVerifier interface {
	VerifySession(token string) (*model.Identity, error)
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// stores the resulting identity in the request context.
func Authenticate(verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				response.Error(w, apperr.New(apperr.CodeInvalidSession, "authentication required"))
				return
			}

			identity, err := verifier.VerifySession(token)
			if err != nil {
				response.Error(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose identity does not hold role.
// It must run after Authenticate.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				response.Error(w, apperr.ErrInvalidSession)
				return
			}
			if identity.Role != role {
				response.Error(w, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// GetIdentity retrieves the session identity from context.
func GetIdentity(ctx context.Context) *model.Identity {
	if id, ok := ctx.Value(IdentityKey).(*model.Identity); ok {
		return id
	}
	return nil
}
