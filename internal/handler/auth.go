package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rahat/vulnarena/internal/auth"
	"github.com/rahat/vulnarena/internal/service"
)

// AuthHandler owns the account lifecycle routes.
//
//	POST /api/auth/register → create an account, set the session cookie
//	POST /api/auth/login    → verify credentials, set the session cookie
//	POST /api/auth/logout   → stamp the logout, clear the session cookie
//	GET  /api/me            → return the authenticated caller's account
//
// The handler decodes requests and sets cookies; everything else — hashing,
// token issuing, which backend the account lands in — happens below it.
type AuthHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler with its dependencies injected.
func NewAuthHandler(users *service.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, logger: logger}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	// Login accepts either the username or the email address.
	Login    string `json:"login"`
	Password string `json:"password"`
}

// HandleRegister creates a new account and signs the caller in.
//
// HTTP: POST /api/auth/register
// BODY: {"username": "alice", "email": "alice@example.com", "password": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("register: invalid JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	result, err := h.users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetSessionCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, result.User)
}

// HandleLogin verifies credentials and starts a session.
//
// HTTP: POST /api/auth/login
// BODY: {"login": "alice", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("login: invalid JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	result, err := h.users.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	auth.SetSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, result.User)
}

// HandleLogout stamps the logout time and clears the session cookie.
//
// HTTP: POST /api/auth/logout (auth required)
//
// The cookie is cleared even when the stamp fails to land — from the
// browser's point of view the session is over either way.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
		return
	}

	if err := h.users.Logout(r.Context(), claims.UserID); err != nil {
		h.logger.Warn("logout stamp failed",
			slog.String("userID", claims.UserID),
			slog.String("error", err.Error()),
		)
	}

	auth.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the authenticated caller's account.
//
// HTTP: GET /api/me (auth required)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
		return
	}

	user, err := h.users.Profile(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
