package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("test-secret", 1)

	tokenString, err := m.GenerateToken("user1", "user1@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "user1", claims.UserID)
	assert.Equal(t, "user1@example.com", claims.Email)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	tokenString, err := NewJWTManager("secret-a", 1).GenerateToken("user1", "u@example.com")
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", 1).VerifyToken(tokenString)
	assert.Error(t, err)
}
