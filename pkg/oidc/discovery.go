// Package oidc provides OpenID Connect discovery for the identity provider's
// endpoints. The gateway never hardcodes provider URLs; anything not set in
// the config is resolved here once at startup.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/scopegate/scopegate/pkg/networking"
	"github.com/scopegate/scopegate/pkg/versions"
)

// DiscoveryDocument represents the OIDC discovery document structure
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri"`
}

// httpClient interface for dependency injection (private for testing)
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DiscoverEndpoints discovers the provider's endpoints from an OIDC issuer.
func DiscoverEndpoints(ctx context.Context, issuer string) (*DiscoveryDocument, error) {
	return discoverEndpointsWithClient(ctx, issuer, nil)
}

// DiscoverEndpointsWithClient discovers the provider's endpoints using a
// custom HTTP client, typically one built by pkg/networking.
func DiscoverEndpointsWithClient(ctx context.Context, issuer string, client networking.HTTPClient) (*DiscoveryDocument, error) {
	return discoverEndpointsWithClient(ctx, issuer, client)
}

func discoverEndpointsWithClient(
	ctx context.Context,
	issuer string,
	client httpClient,
) (*DiscoveryDocument, error) {
	issuerURL, err := url.Parse(issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}

	if err := networking.ValidateEndpointURL(issuer); err != nil {
		return nil, fmt.Errorf("invalid issuer URL: %w", err)
	}

	// Build the well-known URL, preserving tenant/realm path segments.
	base := issuerURL.Scheme + "://" + issuerURL.Host
	tenant := strings.Trim(issuerURL.EscapedPath(), "/")
	wellKnownURL := base + path.Join("/", tenant, ".well-known", "openid-configuration")

	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", versions.UserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", wellKnownURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", wellKnownURL, resp.StatusCode)
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		return nil, fmt.Errorf("%s: unexpected content-type %q", wellKnownURL, ct)
	}

	// Limit response size to prevent DoS
	const maxResponseSize = 1024 * 1024 // 1MB
	var doc DiscoveryDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: unexpected response: %w", wellKnownURL, err)
	}

	if err := validateDocument(&doc, issuer); err != nil {
		return nil, fmt.Errorf("%s: invalid metadata: %w", wellKnownURL, err)
	}
	return &doc, nil
}

// validateDocument validates the OIDC discovery document
func validateDocument(doc *DiscoveryDocument, expectedIssuer string) error {
	if doc.Issuer == "" {
		return fmt.Errorf("missing issuer")
	}

	if doc.Issuer != expectedIssuer {
		return fmt.Errorf("issuer mismatch: expected %s, got %s", expectedIssuer, doc.Issuer)
	}

	if doc.AuthorizationEndpoint == "" {
		return fmt.Errorf("missing authorization_endpoint")
	}

	if doc.TokenEndpoint == "" {
		return fmt.Errorf("missing token_endpoint")
	}

	if doc.JWKSURI == "" {
		return fmt.Errorf("missing jwks_uri")
	}

	endpoints := map[string]string{
		"authorization_endpoint": doc.AuthorizationEndpoint,
		"token_endpoint":         doc.TokenEndpoint,
		"jwks_uri":               doc.JWKSURI,
	}
	if doc.UserinfoEndpoint != "" {
		endpoints["userinfo_endpoint"] = doc.UserinfoEndpoint
	}
	for name, endpoint := range endpoints {
		if err := networking.ValidateEndpointURL(endpoint); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
