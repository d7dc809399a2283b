// Package tokenauth adapts infrastructure/serviceauth's RS256 JWT machinery
// into a internal/collab.TokenValidator: the concrete way the connection
// mode's auth handshake validates a raw session token without the core
// depending on JWT, RSA, or any particular signing scheme directly.
package tokenauth

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/game-hub/wbp-hub/infrastructure/cache"
	"github.com/game-hub/wbp-hub/infrastructure/serviceauth"
	"github.com/game-hub/wbp-hub/internal/collab"
)

// decisionCacheTTL bounds how long a validated token's decision is reused
// without re-verifying the RS256 signature.
const decisionCacheTTL = time.Minute

// SessionClaims is the JWT claim set a session token carries: which server
// it authorizes a connection to, and the client IP it was issued for (an
// empty value means any IP is allowed).
type SessionClaims struct {
	ServerID       string `json:"serverId"`
	AllowedIP      string `json:"allowedIp,omitempty"`
	jwt.RegisteredClaims
}

// Validator validates RS256-signed session tokens against a fixed public key.
// Decisions for a given (token, clientIP) pair are cached briefly so a
// reconnect storm against the same token doesn't re-verify the signature
// on every attempt.
type Validator struct {
	publicKey *rsa.PublicKey
	decisions *cache.TokenCache
}

// New builds a Validator from a PEM-encoded RSA public key, reusing
// serviceauth's PEM parsing so the key-loading path matches the one used for
// service-to-service auth elsewhere in the codebase.
func New(publicKeyPEM []byte) (*Validator, error) {
	key, err := serviceauth.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("tokenauth: %w", err)
	}
	return &Validator{
		publicKey: key,
		decisions: cache.NewTokenCache(cache.CacheConfig{DefaultTTL: decisionCacheTTL}),
	}, nil
}

// Validate implements collab.TokenValidator.
func (v *Validator) Validate(ctx context.Context, rawToken, clientIP string) (collab.TokenDecision, error) {
	key := decisionCacheKey(rawToken, clientIP)
	if cached, ok := v.decisions.GetToken(key); ok {
		return cached.(collab.TokenDecision), nil
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.publicKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return collab.TokenDecision{Valid: false, ServerID: claims.ServerID, Expired: true}, nil
		}
		return collab.TokenDecision{Valid: false}, nil
	}
	if !token.Valid {
		return collab.TokenDecision{Valid: false}, nil
	}

	ipAllowed := claims.AllowedIP == "" || claims.AllowedIP == clientIP
	decision := collab.TokenDecision{
		Valid:     true,
		ServerID:  claims.ServerID,
		Expired:   false,
		IPAllowed: ipAllowed,
	}

	ttl := decisionCacheTTL
	if claims.ExpiresAt != nil {
		if untilExpiry := time.Until(claims.ExpiresAt.Time); untilExpiry < ttl {
			ttl = untilExpiry
		}
	}
	if ttl > 0 {
		v.decisions.SetToken(key, decision, ttl)
	}
	return decision, nil
}

// decisionCacheKey hashes the token rather than using it verbatim as a map
// key, so a validator holding a long-lived cache never retains raw bearer
// tokens in memory.
func decisionCacheKey(rawToken, clientIP string) string {
	sum := sha256.Sum256([]byte(rawToken + "|" + clientIP))
	return hex.EncodeToString(sum[:])
}

var _ collab.TokenValidator = (*Validator)(nil)
