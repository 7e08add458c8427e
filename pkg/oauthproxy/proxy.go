// Package oauthproxy forwards the OAuth 2.0 authorization code flow to the
// upstream identity provider. The gateway never issues tokens itself: the
// authorize endpoint translates into a redirect to the provider and the
// token endpoint relays the exchange verbatim.
package oauthproxy

import (
	"context"
	"fmt"
	"time"

	"github.com/scopegate/scopegate/pkg/networking"
	"github.com/scopegate/scopegate/pkg/oidc"
)

// defaultRequestTimeout bounds outbound calls to the provider when the
// config does not set one.
const defaultRequestTimeout = 10 * time.Second

// Endpoints holds the provider endpoints the proxy forwards to.
type Endpoints struct {
	Issuer            string
	AuthorizeEndpoint string
	TokenEndpoint     string
}

// Config contains configuration for the OAuth proxy.
type Config struct {
	// Issuer is the provider issuer URL, used for OIDC discovery when the
	// endpoints are not set explicitly.
	Issuer string

	// AuthorizeEndpoint and TokenEndpoint override discovery when set.
	AuthorizeEndpoint string
	TokenEndpoint     string

	// ClientID and ClientSecret identify the gateway to the provider. They
	// are added to a token exchange only when the caller sends no
	// client_id of its own.
	ClientID     string
	ClientSecret string

	// CACertPath is the path to a CA certificate bundle for HTTPS requests.
	CACertPath string

	// AllowPrivateIP allows provider endpoints on private IP addresses.
	AllowPrivateIP bool

	// RequestTimeout bounds each outbound call to the provider.
	RequestTimeout time.Duration
}

// Proxy forwards authorize and token requests to the provider. It is
// stateless and safe for concurrent use.
type Proxy struct {
	endpoints    Endpoints
	httpClient   networking.HTTPClient
	timeout      time.Duration
	clientID     string
	clientSecret string
}

// New creates a proxy for the configured provider. Explicitly configured
// endpoints win over discovered ones; discovery only runs when an endpoint
// is missing.
func New(ctx context.Context, config Config) (*Proxy, error) {
	if config.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	httpClient, err := networking.NewHttpClientBuilder().
		WithTimeout(timeout).
		WithCABundle(config.CACertPath).
		WithPrivateIPs(config.AllowPrivateIP).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	endpoints := Endpoints{
		Issuer:            config.Issuer,
		AuthorizeEndpoint: config.AuthorizeEndpoint,
		TokenEndpoint:     config.TokenEndpoint,
	}

	if endpoints.AuthorizeEndpoint == "" || endpoints.TokenEndpoint == "" {
		doc, err := oidc.DiscoverEndpointsWithClient(ctx, config.Issuer, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to discover provider endpoints: %w", err)
		}
		if endpoints.AuthorizeEndpoint == "" {
			endpoints.AuthorizeEndpoint = doc.AuthorizationEndpoint
		}
		if endpoints.TokenEndpoint == "" {
			endpoints.TokenEndpoint = doc.TokenEndpoint
		}
	}

	if endpoints.AuthorizeEndpoint == "" {
		return nil, fmt.Errorf("provider has no authorization endpoint")
	}
	if endpoints.TokenEndpoint == "" {
		return nil, fmt.Errorf("provider has no token endpoint")
	}

	return &Proxy{
		endpoints:    endpoints,
		httpClient:   httpClient,
		timeout:      timeout,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
	}, nil
}

// Endpoints returns the resolved provider endpoints.
func (p *Proxy) Endpoints() Endpoints {
	return p.endpoints
}
