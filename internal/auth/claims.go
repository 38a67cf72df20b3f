package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// defaultTTLMinutes applies when a token is issued with ttl <= 0.
	defaultTTLMinutes = 24 * 60

	issuer = "dss-sync"
)

// Scope is the capability a token grants.
type Scope string

// Token scopes. Write implies read.
const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// ParseScope validates a scope name.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeRead, ScopeWrite:
		return Scope(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
}

// CustomClaims extends the registered JWT claims with the granted scope.
type CustomClaims struct {
	jwt.RegisteredClaims
	Scope Scope `json:"scope"`
}

// Allows reports whether the token grants want.
func (c *CustomClaims) Allows(want Scope) bool {
	switch want {
	case ScopeRead:
		return c.Scope == ScopeRead || c.Scope == ScopeWrite
	case ScopeWrite:
		return c.Scope == ScopeWrite
	}
	return false
}

// GenerateToken signs an HS256 token for subject with the given scope.
func GenerateToken(subject string, scope Scope, secret string, ttlMinutes int) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: subject is required", ErrTokenInvalid)
	}
	if _, err := ParseScope(string(scope)); err != nil {
		return "", err
	}
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTTLMinutes
	}

	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
		},
		Scope: scope,
	}).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// parser accepts only HS256 tokens from this issuer that carry an expiry.
var parser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(issuer),
	jwt.WithExpirationRequired(),
)

// ParseToken verifies a token signed with secret and returns its claims.
// Every failure wraps ErrTokenInvalid.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	claims := new(CustomClaims)
	if _, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	switch {
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	case !claims.Allows(ScopeRead):
		return nil, fmt.Errorf("%w: %w: %q", ErrTokenInvalid, ErrUnknownScope, claims.Scope)
	}
	return claims, nil
}
