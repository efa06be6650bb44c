package middleware

import "context"

type contextKey string

const AuthContextKey contextKey = "auth_context"

// AuthContext holds the authenticated user's identity.
type AuthContext struct {
	OrganizationID int64
	UserID         int64
	TokenID        string // jti
}

func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	val, ok := ctx.Value(AuthContextKey).(*AuthContext)
	return val, ok
}

func WithAuthContext(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, AuthContextKey, auth)
}
