// ABOUTME: Tests for JWT issuance and verification

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	tokens := NewTokens([]byte("test-secret"), time.Hour)

	token, err := tokens.Issue("alex")
	require.NoError(t, err)

	username, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alex", username)
}

func TestVerify_WrongSecret(t *testing.T) {
	issuer := NewTokens([]byte("secret-a"), time.Hour)
	verifier := NewTokens([]byte("secret-b"), time.Hour)

	token, err := issuer.Issue("alex")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	tokens := NewTokens([]byte("test-secret"), -time.Minute)

	token, err := tokens.Issue("alex")
	require.NoError(t, err)

	_, err = tokens.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_Garbage(t *testing.T) {
	tokens := NewTokens([]byte("test-secret"), time.Hour)

	_, err := tokens.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_MissingSubject(t *testing.T) {
	secret := []byte("test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	_, err = NewTokens(secret, time.Hour).Verify(signed)
	assert.ErrorIs(t, err, ErrMissingClaim)
}
