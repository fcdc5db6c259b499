package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	apperrors "chat-relay/errors"
)

var secret = []byte("test_secret_key_for_relay_tests")

func TestVerifier_ValidToken(t *testing.T) {
	req := require.New(t)
	userID := uuid.NewString()

	token, err := GenerateToken(secret, userID, time.Hour)
	req.NoError(err)

	got, err := NewVerifier(secret).Verify(token)
	req.NoError(err)
	req.Equal(userID, got)
}

func TestVerifier_ExpiredToken(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(secret, uuid.NewString(), -time.Minute)
	req.NoError(err)

	_, err = NewVerifier(secret).Verify(token)
	req.ErrorIs(err, apperrors.ErrAuth)
}

func TestVerifier_WrongSecret(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken([]byte("another_secret_entirely_here"), uuid.NewString(), time.Hour)
	req.NoError(err)

	_, err = NewVerifier(secret).Verify(token)
	req.ErrorIs(err, apperrors.ErrAuth)
}

func TestVerifier_Garbage(t *testing.T) {
	req := require.New(t)

	_, err := NewVerifier(secret).Verify("not-a-token")
	req.ErrorIs(err, apperrors.ErrAuth)
}

func TestPassword_RoundTrip(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("TheCrimsonRoom!7")
	req.NoError(err)

	ok, err := ComparePassword("TheCrimsonRoom!7", hash)
	req.NoError(err)
	req.True(ok)

	ok, err = ComparePassword("wrong", hash)
	req.NoError(err)
	req.False(ok)
}
