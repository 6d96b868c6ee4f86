package handler

import (
	"net/http"

	"accountmart-api/internal/service"
	"accountmart-api/pkg/response"
)

// AuthHandler handles registration, login and profile requests.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OperatorLoginRequest is the body of the operator login.
type OperatorLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	sess, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, sess)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	sess, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, sess)
}

// OperatorLogin handles POST /api/admin/login
func (h *AuthHandler) OperatorLogin(w http.ResponseWriter, r *http.Request) {
	var req OperatorLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	sess, err := h.auth.OperatorLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, sess)
}

// Profile handles GET /api/user/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}

	user, err := h.auth.Profile(r.Context(), id.UserID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, user)
}
