package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type TokenType string

const (
	Access  TokenType = "access"
	Refresh TokenType = "refresh"
)

type Claims struct {
	OrganizationID string    `json:"org_id"`
	UserID         string    `json:"sub"`
	TokenType      TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Organization returns the org id claim as an int64.
func (c *Claims) Organization() (int64, error) {
	return strconv.ParseInt(c.OrganizationID, 10, 64)
}

type Manager struct {
	signingKey []byte
}

func NewManager(signingKey string) *Manager {
	return &Manager{signingKey: []byte(signingKey)}
}

func (m *Manager) GenerateAccessToken(userID, organizationID int64) (string, error) {
	return m.generateToken(userID, organizationID, Access, 15*time.Minute)
}

func (m *Manager) GenerateRefreshToken(userID, organizationID int64) (string, error) {
	return m.generateToken(userID, organizationID, Refresh, 7*24*time.Hour)
}

func (m *Manager) generateToken(userID, organizationID int64, tokenType TokenType, duration time.Duration) (string, error) {
	now := time.Now().UTC()
	sub := strconv.FormatInt(userID, 10)
	claims := Claims{
		OrganizationID: strconv.FormatInt(organizationID, 10),
		UserID:         sub,
		TokenType:      tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(), // jti
			Subject:   sub,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = "v1"

	return token.SignedString(m.signingKey)
}

func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
