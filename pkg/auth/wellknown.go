package auth

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/scopegate/scopegate/pkg/logger"
)

// RFC9728AuthInfo is the OAuth Protected Resource metadata document.
type RFC9728AuthInfo struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	JWKSURI                string   `json:"jwks_uri"`
	ScopesSupported        []string `json:"scopes_supported"`
}

// NewAuthInfoHandler creates an HTTP handler that returns RFC 9728 compliant
// OAuth Protected Resource metadata. The supported scopes are derived from
// the route table so the advertisement always matches what the gateway
// actually enforces.
func NewAuthInfoHandler(issuer, jwksURL, resourceURL string, routes RouteTable) http.Handler {
	scopes := collectScopes(routes)
	if len(scopes) == 0 {
		scopes = []string{"openid"}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		// Without a resource URL no sensible document can be produced.
		if resourceURL == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		authInfo := RFC9728AuthInfo{
			Resource:               resourceURL,
			AuthorizationServers:   []string{issuer},
			BearerMethodsSupported: []string{"header"},
			JWKSURI:                jwksURL,
			ScopesSupported:        scopes,
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(authInfo); err != nil {
			logger.Errorf("failed to encode protected resource metadata: %v", err)
		}
	})
}

// collectScopes returns the sorted union of every scope the route table
// requires.
func collectScopes(routes RouteTable) []string {
	seen := make(map[string]struct{})
	for _, policy := range routes {
		for _, scope := range policy.RequiredScopes {
			seen[scope] = struct{}{}
		}
	}

	scopes := make([]string, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes
}
