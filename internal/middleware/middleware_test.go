package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"accountmart-api/internal/apperr"
	"accountmart-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]*model.Identity

func (s stubVerifier) VerifySession(token string) (*model.Identity, error) {
	if token == "expired" {
		return nil, apperr.ErrExpiredSession
	}
	if id, ok := s[token]; ok {
		return id, nil
	}
	return nil, apperr.ErrInvalidSession
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error.Code
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	verifier := stubVerifier{
		"buyer-token": {UserID: "u1", Role: model.RoleBuyer},
		"op-token":    {UserID: "op", Role: model.RoleOperator},
	}
	var seen *model.Identity
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Authenticate(verifier)(RequireRole(model.RoleOperator)(final))

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, "INVALID_SESSION"},
		{"wrong scheme", "Basic op-token", http.StatusUnauthorized, "INVALID_SESSION"},
		{"unknown", "Bearer nope", http.StatusUnauthorized, "INVALID_SESSION"},
		{"expired", "Bearer expired", http.StatusUnauthorized, "EXPIRED_SESSION"},
		{"buyer", "Bearer buyer-token", http.StatusForbidden, "FORBIDDEN"},
		{"operator", "bearer op-token", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(t, rec))
				assert.Nil(t, seen)
				return
			}
			require.NotNil(t, seen)
			assert.Equal(t, "op", seen.UserID)
		})
	}
}

func TestRecoveryAndRequestID(t *testing.T) {
	var rid string
	h := RequestID(Logging(Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid = GetRequestID(r.Context())
		panic("boom")
	}))))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
	assert.Equal(t, "abc", rid)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDRejectsMalformedHeader(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "bad id\nwith newline")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotEqual(t, "bad id\nwith newline", got)
	assert.NotEmpty(t, got)
}
