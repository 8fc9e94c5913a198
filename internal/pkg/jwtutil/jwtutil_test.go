package jwtutil

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("secret", 42, "ana", time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "ana", claims.Username)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret", 1, "ana", time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("other", token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := GenerateToken("secret", 1, "ana", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
