// Package auth issues and verifies the bearer tokens protecting the
// daemon API. Tokens are compact HS256 JWTs signed with a secret
// derived from the daemon master key; no third-party JWT dependency.
package auth

import (
	"time"
)

// TokenIssuer is stamped into every token this daemon issues
const TokenIssuer = "velo"

// Claims is the payload of a daemon API token
type Claims struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// NewClaims stamps fresh claims for an authenticated operator
func NewClaims(subject string, lifetime time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		Issuer:    TokenIssuer,
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(lifetime).Unix(),
	}
}

// Expired reports whether the token lifetime has passed
func (c *Claims) Expired() bool {
	return time.Now().Unix() > c.ExpiresAt
}

// Valid reports whether the claims are complete, consistent and not
// expired
func (c *Claims) Valid() bool {
	if c.Issuer == "" || c.Subject == "" {
		return false
	}
	if c.IssuedAt <= 0 || c.ExpiresAt <= c.IssuedAt {
		return false
	}
	return !c.Expired()
}
