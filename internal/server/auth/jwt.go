// Package auth mints and verifies the short-lived access tokens. Tokens are
// stateless HS256 JWTs: validity is decided by signature and claims alone,
// never by a store lookup.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinKeyBytes is the minimum HMAC key length. HS256 needs at least a
// 256-bit secret; anything shorter is a configuration error at startup.
const MinKeyBytes = 32

// Claims carries the registered claim set plus the subject's display name
// and role list.
type Claims struct {
	jwt.RegisteredClaims
	DisplayName string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// Minter produces signed access tokens. It has no side effects and holds no
// shared mutable state, so one instance is safe for concurrent use.
type Minter struct {
	key      []byte
	issuer   string
	audience string
	lifetime time.Duration
	clock    timex.Clock
}

// NewMinter validates the signing key and builds a Minter. A missing or
// short key is rejected here so the process fails at startup, not per call.
func NewMinter(key []byte, issuer, audience string, lifetime time.Duration, clock timex.Clock) (*Minter, error) {
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes, got %d", MinKeyBytes, len(key))
	}
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &Minter{
		key:      key,
		issuer:   issuer,
		audience: audience,
		lifetime: lifetime,
		clock:    clock,
	}, nil
}

// Mint issues a signed token for the subject. Every token gets a fresh jti,
// notBefore = now and expires = now + lifetime.
func (m *Minter) Mint(userID, displayName string, roles []string) (string, error) {
	now := m.clock.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
		},
		DisplayName: displayName,
		Roles:       roles,
	})

	return token.SignedString(m.key)
}

// Parse verifies the signature and claims of an access token and returns the
// claim set. Expired tokens map to common.ErrTokenExpired, everything else
// invalid maps to common.ErrInvalidToken.
func (m *Minter) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	parser := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
	}
	if m.issuer != "" {
		parser = append(parser, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		parser = append(parser, jwt.WithAudience(m.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.key, nil
	}, parser...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
