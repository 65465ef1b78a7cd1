package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkillSwap/config"
	"SkillSwap/pkg/errors"
)

func setup(t *testing.T) {
	t.Helper()
	config.Cfg = config.Config{JWTSecret: "test-secret", JWTIssuer: "skillswap", JWTExpireMinutes: 30, JWTRefreshDays: 7}
	require.NoError(t, Init())
}

func TestAccessTokenRoundTrip(t *testing.T) {
	setup(t)

	raw, expiresIn, err := GenerateAccessToken(Claims{UserID: "idp|42", Name: "Jo Doe"})
	require.NoError(t, err)
	assert.Greater(t, expiresIn, 0)

	claims, err := ParseAccessToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "idp|42", claims.UserID)
	assert.Equal(t, "Jo Doe", claims.Name)
	assert.Empty(t, claims.AvatarURL)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	setup(t)
	raw, _, err := GenerateAccessToken(Claims{UserID: "u1"})
	require.NoError(t, err)

	config.Cfg.JWTSecret = "another-secret"
	_, err = ParseAccessToken(raw)
	assert.Error(t, err)
}

func TestClaimsFromMapNumericID(t *testing.T) {
	c, err := ClaimsFromMap(map[string]interface{}{IdentityKey: float64(1234567)})
	require.NoError(t, err)
	assert.Equal(t, "1234567", c.UserID)

	_, err = ClaimsFromMap(map[string]interface{}{})
	assert.ErrorIs(t, err, errors.ErrUserIDNotFound)
}

func TestPeekClaimsSkipsSignature(t *testing.T) {
	setup(t)
	raw, _, err := GenerateAccessToken(Claims{UserID: "idp|7", AvatarURL: "https://cdn.example/7.png"})
	require.NoError(t, err)

	config.Cfg.JWTSecret = "another-secret"
	claims, err := PeekClaims(raw)
	require.NoError(t, err)
	assert.Equal(t, "idp|7", claims.UserID)
	assert.Equal(t, "https://cdn.example/7.png", claims.AvatarURL)

	_, err = PeekClaims("not-a-token")
	assert.Error(t, err)
}
