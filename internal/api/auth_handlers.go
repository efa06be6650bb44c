package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/egrangel/facerecon-sub001/internal/auth"
	"github.com/egrangel/facerecon-sub001/internal/data"
	"github.com/egrangel/facerecon-sub001/internal/middleware"
	"github.com/egrangel/facerecon-sub001/internal/tokens"
)

// Timing-safe dummy hash verified when the user does not exist.
const dummyHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g"

// UserRepo looks up operator accounts.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*data.User, error)
}

type AuthHandler struct {
	users     UserRepo
	tokens    *tokens.Manager
	blacklist auth.TokenBlacklist
}

func NewAuthHandler(users UserRepo, t *tokens.Manager, b auth.TokenBlacklist) *AuthHandler {
	return &AuthHandler{users: users, tokens: t, blacklist: b}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// Login verifies credentials and issues an access/refresh token pair.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if errors.Is(err, data.ErrRecordNotFound) {
		auth.CheckPassword(req.Password, dummyHash)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	match, err := auth.CheckPassword(req.Password, user.PasswordHash)
	if err != nil || !match || !user.IsActive {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	accessToken, err := h.tokens.GenerateAccessToken(user.ID, user.OrganizationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	refreshToken, err := h.tokens.GenerateRefreshToken(user.ID, user.OrganizationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int((15 * time.Minute).Seconds()),
	})
}

// Refresh exchanges a refresh token for a new access token.
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	claims, err := h.tokens.ValidateToken(req.RefreshToken)
	if err != nil || claims.TokenType != tokens.Refresh {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	if h.blacklist != nil {
		blacklisted, err := h.blacklist.IsBlacklisted(r.Context(), claims.OrganizationID, claims.ID)
		if err != nil || blacklisted {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
	}

	orgID, err := claims.Organization()
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	accessToken, err := h.tokens.GenerateAccessToken(userID, orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int((15 * time.Minute).Seconds()),
	})
}

// Logout revokes the caller's token for the remainder of its lifetime.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.blacklist != nil {
		orgID := strconv.FormatInt(ac.OrganizationID, 10)
		if err := h.blacklist.AddToBlacklist(r.Context(), orgID, ac.TokenID, 15*time.Minute); err != nil {
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
