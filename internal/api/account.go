package api

import (
	"log/slog"
	"net/http"
	"time"
)

// CredentialsRequest is the body of POST /auth/signup and /auth/login.
// bcrypt ignores input past 72 bytes, so longer passwords are refused.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Create(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user created", "user", user.Email)
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	token, expires, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("login failed", "error", err)
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires,
	})
}

// DeleteAccount removes the caller's history and then their credentials.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	email := GetUserEmail(r.Context())

	if err := h.auth.Delete(r.Context(), email); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("account deleted", "user", email)
	w.WriteHeader(http.StatusNoContent)
}
