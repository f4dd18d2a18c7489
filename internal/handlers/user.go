package handlers

import (
	"net/http"

	"github.com/calmspace/apiserver/internal/services"
	"github.com/calmspace/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// UserHandler serves the authenticated user's own account.
type UserHandler struct {
	accounts *services.AccountService
	exports  *services.ExportService
}

func NewUserHandler(accounts *services.AccountService, exports *services.ExportService) *UserHandler {
	return &UserHandler{accounts: accounts, exports: exports}
}

// UserRouter registers account routes. Every route requires authMiddleware.
func UserRouter(
	r chi.Router,
	accounts *services.AccountService,
	exports *services.ExportService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(accounts, exports)

	r.Use(authMiddleware)
	r.Get("/profile", handler.GetProfile)
	r.Put("/profile", handler.UpdateProfile)
	r.Put("/password", handler.ChangePassword)
	r.Delete("/account", handler.DeleteAccount)
	r.Get("/stats", handler.Stats)
	r.Post("/export", handler.Export)
}

type ProfileResponse struct {
	Message string            `json:"message,omitempty"`
	User    types.UserProfile `json:"user"`
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	profile, err := h.accounts.GetProfile(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: profile})
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req services.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := h.accounts.UpdateProfile(r.Context(), id.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Message: "Profile updated successfully", User: profile})
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req services.PasswordChange
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), id.UserID, req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.accounts.DeleteAccount(r.Context(), id.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Account deleted successfully")
}

func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	stats, err := h.accounts.Stats(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Export assembles the caller's data. The result carries a storage location
// or, without object storage, the document itself.
func (h *UserHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	result, err := h.exports.Export(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
