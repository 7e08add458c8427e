// Package auth provides authentication and authorization utilities for the
// gateway: bearer credential extraction, token verification against the
// identity provider's signing keys, and scope-based access control.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UnverifiedClaims is the result of structurally decoding a token without
// any cryptographic or temporal validation. It must never be treated as an
// authenticated identity; handlers only ever see a ClaimSet.
type UnverifiedClaims struct {
	// Header is the decoded JOSE header.
	Header map[string]any

	// Claims is the decoded payload.
	Claims map[string]any
}

// KeyID returns the kid header, if present.
func (u *UnverifiedClaims) KeyID() string {
	kid, _ := u.Header["kid"].(string)
	return kid
}

// Algorithm returns the alg header, if present.
func (u *UnverifiedClaims) Algorithm() string {
	alg, _ := u.Header["alg"].(string)
	return alg
}

// ClaimSet is a verified set of token claims. Only the Validator constructs
// a ClaimSet, after signature, issuer, audience and time checks have all
// passed. Handlers receive it through the request context and must treat it
// as read-only.
type ClaimSet struct {
	// Subject is the sub claim.
	Subject string

	// Email is the optional email claim, passed through untouched.
	Email string

	// Scope is the space-separated scope claim as granted by the provider.
	Scope string

	// Issuer and Audience are the validated iss/aud claims.
	Issuer   string
	Audience []string

	// IssuedAt and ExpiresAt are the validated time claims. IssuedAt is the
	// zero time when the provider did not include iat.
	IssuedAt  time.Time
	ExpiresAt time.Time

	raw jwt.MapClaims
}

// newClaimSet builds a ClaimSet from validated claims. It is unexported so
// that a ClaimSet can only come out of the Validator.
func newClaimSet(claims jwt.MapClaims) (*ClaimSet, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}

	cs := &ClaimSet{
		Subject: strings.TrimSpace(sub),
		raw:     claims,
	}

	if email, ok := claims["email"].(string); ok {
		cs.Email = email
	}
	if scope, ok := claims["scope"].(string); ok {
		cs.Scope = scope
	}
	if iss, err := claims.GetIssuer(); err == nil {
		cs.Issuer = iss
	}
	if aud, err := claims.GetAudience(); err == nil {
		cs.Audience = aud
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		cs.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		cs.ExpiresAt = exp.Time
	}

	return cs, nil
}

// GrantedScopes returns the scope claim split into individual scope names.
// An empty or absent scope claim yields an empty set.
func (c *ClaimSet) GrantedScopes() []string {
	return ParseScopes(c.Scope)
}

// Claim returns a raw claim by name for passthrough use.
func (c *ClaimSet) Claim(name string) (any, bool) {
	v, ok := c.raw[name]
	return v, ok
}

// Map returns a copy of all claims for serialization to handlers. The copy
// keeps the stored ClaimSet immutable.
func (c *ClaimSet) Map() map[string]any {
	out := make(map[string]any, len(c.raw))
	for k, v := range c.raw {
		out[k] = v
	}
	return out
}
