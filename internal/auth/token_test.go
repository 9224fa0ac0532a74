package auth

import (
	"testing"
	"time"

	"grocery-orders/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = config.AuthConfig{JWTSecret: "test-secret", Issuer: "grocery-api"}

func TestMintAndParse(t *testing.T) {
	token, err := MintToken(testCfg, time.Now(), 42, RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "42", claims.Subject)
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := MintToken(testCfg, time.Now().Add(-2*time.Hour), 42, RoleCustomer, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(testCfg, token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseRejectsWrongSecretAndIssuer(t *testing.T) {
	token, err := MintToken(testCfg, time.Now(), 42, RoleCustomer, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(config.AuthConfig{JWTSecret: "other", Issuer: "grocery-api"}, token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = ParseToken(config.AuthConfig{JWTSecret: "test-secret", Issuer: "someone-else"}, token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestMintValidatesInput(t *testing.T) {
	_, err := MintToken(config.AuthConfig{}, time.Now(), 42, RoleCustomer, time.Hour)
	assert.ErrorIs(t, err, errSecretRequired)

	_, err = MintToken(testCfg, time.Now(), 0, RoleCustomer, time.Hour)
	assert.Error(t, err)
}
