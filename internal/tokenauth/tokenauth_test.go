package tokenauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, pubPEM
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims SessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestValidateAcceptsValidToken(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	validator, err := New(pubPEM)
	require.NoError(t, err)

	raw := signToken(t, key, SessionClaims{
		ServerID: "srv-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	decision, err := validator.Validate(context.Background(), raw, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, decision.Valid)
	assert.Equal(t, "srv-1", decision.ServerID)
	assert.False(t, decision.Expired)
	assert.True(t, decision.IPAllowed)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	validator, err := New(pubPEM)
	require.NoError(t, err)

	raw := signToken(t, key, SessionClaims{
		ServerID: "srv-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	decision, err := validator.Validate(context.Background(), raw, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Valid)
	assert.True(t, decision.Expired)
}

func TestValidateRejectsMismatchedIP(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	validator, err := New(pubPEM)
	require.NoError(t, err)

	raw := signToken(t, key, SessionClaims{
		ServerID:  "srv-1",
		AllowedIP: "10.0.0.1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	decision, err := validator.Validate(context.Background(), raw, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, decision.Valid)
	assert.False(t, decision.IPAllowed)
}

func TestValidateRejectsBadSignature(t *testing.T) {
	_, pubPEM := generateTestKeyPair(t)
	validator, err := New(pubPEM)
	require.NoError(t, err)

	otherKey, _ := generateTestKeyPair(t)
	raw := signToken(t, otherKey, SessionClaims{ServerID: "srv-1"})

	decision, err := validator.Validate(context.Background(), raw, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, decision.Valid)
}

func TestNewRejectsMalformedPEM(t *testing.T) {
	_, err := New([]byte("not a pem"))
	assert.Error(t, err)
}

func TestValidateCachesDecisionAcrossCalls(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	validator, err := New(pubPEM)
	require.NoError(t, err)

	raw := signToken(t, key, SessionClaims{
		ServerID: "srv-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	first, err := validator.Validate(context.Background(), raw, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, first.Valid)

	cached, ok := validator.decisions.GetToken(decisionCacheKey(raw, "10.0.0.1"))
	require.True(t, ok, "decision should be cached after first validation")
	assert.Equal(t, first, cached)

	second, err := validator.Validate(context.Background(), raw, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
