package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/egrangel/facerecon-sub001/internal/auth"
	"github.com/egrangel/facerecon-sub001/internal/tokens"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (*tokens.Claims, error)
}

type JWTAuth struct {
	tokens    TokenValidator
	blacklist auth.TokenBlacklist
}

// NewJWTAuth builds the middleware. blacklist may be nil when Redis is not
// configured; revocation checks are then skipped.
func NewJWTAuth(t TokenValidator, b auth.TokenBlacklist) *JWTAuth {
	return &JWTAuth{tokens: t, blacklist: b}
}

// Middleware verifies the bearer token and injects AuthContext.
func (m *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if claims.TokenType != tokens.Access {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if m.blacklist != nil {
			// Fail closed on blacklist errors.
			blacklisted, err := m.blacklist.IsBlacklisted(r.Context(), claims.OrganizationID, claims.ID)
			if err != nil || blacklisted {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		orgID, err := claims.Organization()
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		userID, err := strconv.ParseInt(claims.UserID, 10, 64)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ac := &AuthContext{
			OrganizationID: orgID,
			UserID:         userID,
			TokenID:        claims.ID,
		}
		next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), ac)))
	})
}
