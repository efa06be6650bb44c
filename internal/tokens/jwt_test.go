package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager("test-signing-key")

	token, err := m.GenerateAccessToken(17, 3)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "17", claims.UserID)
	assert.Equal(t, Access, claims.TokenType)

	orgID, err := claims.Organization()
	require.NoError(t, err)
	assert.Equal(t, int64(3), orgID)
	assert.NotEmpty(t, claims.ID, "jti is set")
}

func TestManager_RefreshTokenType(t *testing.T) {
	m := NewManager("test-signing-key")

	token, err := m.GenerateRefreshToken(17, 3)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, Refresh, claims.TokenType)
}

func TestManager_WrongKeyRejected(t *testing.T) {
	token, err := NewManager("key-a").GenerateAccessToken(17, 3)
	require.NoError(t, err)

	_, err = NewManager("key-b").ValidateToken(token)
	assert.Error(t, err)
}

func TestManager_GarbageRejected(t *testing.T) {
	_, err := NewManager("key").ValidateToken("not.a.token")
	assert.Error(t, err)
}
