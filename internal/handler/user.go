package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rahat/vulnarena/internal/auth"
	"github.com/rahat/vulnarena/internal/service"
)

// UserHandler owns the routes that operate on user accounts beyond the
// session lifecycle: flag submission and the admin user search.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type completeFlagRequest struct {
	FlagID string `json:"flagId"`
}

// HandleCompleteFlag records a captured flag on the caller's account.
//
// HTTP: POST /api/flags (auth required)
// BODY: {"flagId": "sqli-1"}
//
// Resubmitting an already-captured flag succeeds and changes nothing; the
// response always carries the caller's current flag set.
func (h *UserHandler) HandleCompleteFlag(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
		return
	}

	var req completeFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("flag submit: invalid JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid JSON body",
		})
		return
	}

	user, err := h.users.CompleteFlag(r.Context(), claims.UserID, req.FlagID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"flagsFound": user.FlagsFound,
		"total":      len(user.FlagsFound),
	})
}

// HandleSearch runs the admin user search across the backends.
//
// HTTP: GET /api/users/search?q=term (admin required)
//
// An empty q is allowed and matches everyone — this is the admin's
// "list all users" in disguise.
func (h *UserHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")

	results, err := h.users.Search(r.Context(), term)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}
