package auth

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	apierrors "github.com/scopegate/scopegate/pkg/api/errors"
	scerr "github.com/scopegate/scopegate/pkg/errors"
	"github.com/scopegate/scopegate/pkg/logger"
)

// RoutePolicy describes the authentication requirements of a single route.
type RoutePolicy struct {
	// RequiresAuth gates the route behind bearer token validation.
	RequiresAuth bool

	// RequiredScopes lists the scopes a verified token must carry. The
	// check is exact set membership; a scope never implies another.
	RequiredScopes []string
}

// RouteTable maps route patterns to their policies. Patterns use the same
// placeholder syntax as the router, e.g. "/api/custom/{endpoint}".
type RouteTable map[string]RoutePolicy

// PolicyFor returns the policy for a request path, matching placeholder
// segments literally. The second return is false when no pattern matches.
// When several placeholder patterns match the same path, the
// lexicographically smallest pattern wins, so a literal segment beats a
// placeholder at the same position and the choice is stable across
// requests.
func (t RouteTable) PolicyFor(path string) (RoutePolicy, bool) {
	if policy, ok := t[path]; ok {
		return policy, true
	}
	segments := splitPath(path)
	patterns := make([]string, 0, len(t))
	for pattern := range t {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	for _, pattern := range patterns {
		if matchSegments(splitPath(pattern), segments) {
			return t[pattern], true
		}
	}
	return RoutePolicy{}, false
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}

// Middleware returns an HTTP middleware that authenticates requests
// according to the route table. Routes absent from the table, and routes
// whose policy does not require auth, pass through untouched. For protected
// routes it validates the bearer token, enforces required scopes and stores
// the verified claims in the request context.
func Middleware(validator *Validator, routes RouteTable) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, found := routes.PolicyFor(r.URL.Path)
			if !found || !policy.RequiresAuth {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, err := ExtractBearer(r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", validator.buildWWWAuthenticate(false, ""))
				apierrors.WriteError(w, scerr.NewMalformedCredentialError("Not authenticated", err))
				return
			}

			claims, err := validator.ValidateToken(r.Context(), tokenString)
			if err != nil {
				typed := classifyValidationError(err)
				w.Header().Set("WWW-Authenticate", validator.buildWWWAuthenticate(true, typed.Message))
				logger.Debugw("token validation failed", "path", r.URL.Path, "reason", typed.Type)
				apierrors.WriteError(w, typed)
				return
			}

			if len(policy.RequiredScopes) > 0 {
				missing := MissingScopes(policy.RequiredScopes, claims.GrantedScopes())
				if len(missing) > 0 {
					w.Header().Set("WWW-Authenticate", validator.buildInsufficientScope(policy.RequiredScopes))
					apierrors.WriteError(w, scerr.NewMissingScopeError(
						"Missing required scopes: "+strings.Join(missing, ", "), nil))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// classifyValidationError converts validator sentinels into the typed
// errors the response envelope is built from.
func classifyValidationError(err error) *scerr.Error {
	switch {
	case errors.Is(err, ErrNoToken), errors.Is(err, ErrMalformedCredential):
		return scerr.NewMalformedCredentialError("Malformed authentication credential", err)
	case errors.Is(err, ErrTokenExpired):
		return scerr.NewTokenExpiredError("Token has expired", err)
	case errors.Is(err, ErrTokenNotYetValid):
		return scerr.NewTokenNotYetValidError("Token not yet valid", err)
	case errors.Is(err, ErrInvalidIssuer), errors.Is(err, ErrInvalidAudience):
		return scerr.NewInvalidIssuerOrAudienceError("Invalid token issuer or audience", err)
	case errors.Is(err, ErrInvalidSignature):
		return scerr.NewInvalidSignatureError("Invalid token signature", err)
	default:
		return scerr.NewInvalidSignatureError("Could not validate credentials", err)
	}
}
