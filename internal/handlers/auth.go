package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/calmspace/apiserver/internal/auth"
	"github.com/calmspace/apiserver/internal/services"
	"github.com/calmspace/apiserver/types"
	"github.com/go-chi/chi/v5"
)

var (
	errMissingAuthorization = errors.New("missing authorization")
	errInvalidAuthorization = errors.New("invalid authorization")
)

// AuthHandler provides registration, login, logout, and session checks.
type AuthHandler struct {
	accounts *services.AccountService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts *services.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// AuthRouter registers auth routes on the given router. limit, when not nil,
// wraps the credential endpoints.
func AuthRouter(r chi.Router, accounts *services.AccountService, limit func(http.Handler) http.Handler) {
	handler := NewAuthHandler(accounts)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
	})
	r.Post("/logout", handler.Logout)
	r.Get("/verify", handler.Verify)
}

// RequireAuth checks the bearer token signature and expiry and injects the
// caller's identity into the request context. Session rows are not consulted.
func RequireAuth(tokens *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			claims, err := tokens.Verify(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: claims.UserID, Username: claims.Username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Register creates a new user account and returns a token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{Message: "User registered successfully", Token: result.Token, User: result.User})
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Message: "Login successful", Token: result.Token, User: result.User})
}

// Logout ends every session of the token's user. It succeeds even without a
// usable token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, err := bearerToken(r); err == nil {
		h.accounts.Logout(r.Context(), token)
	}
	writeMessage(w, http.StatusOK, "Logout successful")
}

// Verify reports whether the bearer token belongs to a live session.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	user, err := h.accounts.VerifySession(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Valid: true, User: user})
}

type AuthResponse struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    types.UserSummary `json:"user"`
}

type VerifyResponse struct {
	Valid bool              `json:"valid"`
	User  types.UserSummary `json:"user"`
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errMissingAuthorization
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errInvalidAuthorization
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errInvalidAuthorization
	}
	return token, nil
}
