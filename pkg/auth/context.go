package auth

import (
	"context"
)

// ClaimsContextKey is the context key used to store verified claims.
type ClaimsContextKey struct{}

// WithClaims returns a new context carrying the verified claim set.
func WithClaims(ctx context.Context, claims *ClaimSet) context.Context {
	return context.WithValue(ctx, ClaimsContextKey{}, claims)
}

// ClaimsFromContext retrieves the verified claim set from the context.
// Returns nil and false if no claims are present, which means the request
// did not pass through the authentication middleware.
func ClaimsFromContext(ctx context.Context) (*ClaimSet, bool) {
	if ctx == nil {
		return nil, false
	}

	claims, ok := ctx.Value(ClaimsContextKey{}).(*ClaimSet)
	return claims, ok
}
