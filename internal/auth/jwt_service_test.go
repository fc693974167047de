package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret: "signing-secret",
		Issuer: "covecrm",
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("user-1", "session-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "session-1", claims.SessionID)
	require.Equal(t, "covecrm", claims.Issuer)
}

func TestValidateAccessTokenExpired(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := now
	svc, err := NewJWTService(JWTConfig{
		Secret:         "signing-secret",
		AccessTokenTTL: time.Minute,
		Clock:          func() time.Time { return clock },
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	issuerA, err := NewJWTService(JWTConfig{Secret: "secret-a"})
	require.NoError(t, err)
	issuerB, err := NewJWTService(JWTConfig{Secret: "secret-b"})
	require.NoError(t, err)

	token, err := issuerA.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	_, err = issuerB.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateAccessTokenWrongIssuer(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "signing-secret", Issuer: "covecrm"})
	require.NoError(t, err)
	other, err := NewJWTService(JWTConfig{Secret: "signing-secret", Issuer: "someone-else"})
	require.NoError(t, err)

	token, err := other.GenerateAccessToken("user-1", "")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}
