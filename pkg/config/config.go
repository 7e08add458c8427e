// Package config contains the definition of the gateway config structure
// and the logic required to load and validate it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scopegate/scopegate/pkg/networking"
)

// Config represents the configuration of the gateway. It is loaded once at
// startup and treated as immutable afterwards.
type Config struct {
	Server    Server      `yaml:"server"`
	Provider  Provider    `yaml:"provider"`
	Upstreams Upstreams   `yaml:"upstreams"`
	Telemetry Telemetry   `yaml:"telemetry,omitempty"`
	Routes    []RoutePlan `yaml:"routes,omitempty"`
}

// Server contains the inbound listener settings.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// PublicURL is the externally visible base URL of the gateway,
	// advertised in the protected resource metadata. Defaults to the bind
	// address over plain HTTP.
	PublicURL string `yaml:"public_url,omitempty"`
}

// Address returns the host:port pair the server binds to.
func (s Server) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ResourceURL returns the externally visible base URL of the gateway.
func (s Server) ResourceURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return "http://" + s.Address()
}

// Provider contains everything the gateway needs to know about the external
// identity provider: verification material for inbound tokens and the
// endpoints the OAuth proxy forwards to.
type Provider struct {
	// Issuer is the expected token issuer. When DiscoverEndpoints is set it
	// is also used as the base for OIDC discovery.
	Issuer string `yaml:"issuer"`

	// AcceptedIssuers lists additional issuer values to accept. Some
	// providers emit a bare project identifier rather than a URL.
	AcceptedIssuers []string `yaml:"accepted_issuers,omitempty"`

	// Audience is the expected token audience.
	Audience string `yaml:"audience"`

	// JWKSURL is the URL to fetch signing keys from. Discovered from the
	// issuer when empty and DiscoverEndpoints is set.
	JWKSURL string `yaml:"jwks_url,omitempty"`

	// ClientID and ClientSecret identify this gateway to the provider.
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`

	// AuthorizeEndpoint and TokenEndpoint are the provider's own OAuth
	// endpoints the proxy forwards to. Discovered when empty and
	// DiscoverEndpoints is set.
	AuthorizeEndpoint string `yaml:"authorize_endpoint,omitempty"`
	TokenEndpoint     string `yaml:"token_endpoint,omitempty"`

	// DiscoverEndpoints enables OIDC discovery to fill in JWKSURL,
	// AuthorizeEndpoint and TokenEndpoint.
	DiscoverEndpoints bool `yaml:"discover_endpoints,omitempty"`

	// CACertPath is an optional CA bundle for HTTPS requests to the provider.
	CACertPath string `yaml:"ca_cert_path,omitempty"`

	// AllowPrivateIP allows provider endpoints on private IP addresses.
	AllowPrivateIP bool `yaml:"allow_private_ip,omitempty"`

	// ClockSkew is the tolerance applied to time-based claim checks.
	ClockSkew time.Duration `yaml:"clock_skew,omitempty"`

	// RequestTimeout bounds each outbound call to the provider.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// Upstreams contains the base URLs of external services the gateway
// forwards demo requests to.
type Upstreams struct {
	UsersURL      string `yaml:"users_url,omitempty"`
	WeatherURL    string `yaml:"weather_url,omitempty"`
	CustomBaseURL string `yaml:"custom_base_url,omitempty"`
}

// Telemetry contains the metrics settings.
type Telemetry struct {
	// EnableMetricsPath exposes a Prometheus /metrics endpoint.
	EnableMetricsPath bool `yaml:"enable_metrics_path,omitempty"`

	// IncludeRuntimeMetrics adds Go runtime and process collectors.
	IncludeRuntimeMetrics bool `yaml:"include_runtime_metrics,omitempty"`
}

// RoutePlan declares the authentication requirements of a single protected
// route. The gateway owns the handlers; this table only decides which of
// them require authentication and which scopes they demand.
type RoutePlan struct {
	Path           string   `yaml:"path"`
	RequiresAuth   bool     `yaml:"requires_auth"`
	RequiredScopes []string `yaml:"required_scopes,omitempty"`
}

const (
	defaultHost           = "127.0.0.1"
	defaultPort           = 8000
	defaultClockSkew      = 60 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

// DefaultConfig returns a config with the built-in route table and sensible
// defaults. The scope requirements mirror the demo resource set.
func DefaultConfig() *Config {
	return &Config{
		Server: Server{
			Host: defaultHost,
			Port: defaultPort,
		},
		Provider: Provider{
			DiscoverEndpoints: true,
			ClockSkew:         defaultClockSkew,
			RequestTimeout:    defaultRequestTimeout,
		},
		Upstreams: Upstreams{
			UsersURL: "https://jsonplaceholder.typicode.com/users",
		},
		Routes: DefaultRoutes(),
	}
}

// DefaultRoutes returns the scope requirements for the built-in routes.
func DefaultRoutes() []RoutePlan {
	return []RoutePlan{
		{Path: "/api/public", RequiresAuth: false},
		{Path: "/api/private", RequiresAuth: true},
		{Path: "/api/private-scoped/readonly", RequiresAuth: true, RequiredScopes: []string{"read:messages"}},
		{Path: "/api/private-scoped/write", RequiresAuth: true, RequiredScopes: []string{"read:messages", "write:messages"}},
		{Path: "/api/private-scoped/delete", RequiresAuth: true, RequiredScopes: []string{"delete:messages"}},
		{Path: "/api/external/users", RequiresAuth: false},
		{Path: "/api/external/weather", RequiresAuth: true},
		{Path: "/api/custom/{endpoint}", RequiresAuth: true},
	}
}

// Load reads the config file at path, applies environment overrides and
// validates the result. An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path is provided via CLI flag
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override the secrets and
// endpoints without touching the config file.
func applyEnvOverrides(cfg *Config) {
	for env, target := range map[string]*string{
		"SCOPEGATE_ISSUER":             &cfg.Provider.Issuer,
		"SCOPEGATE_AUDIENCE":           &cfg.Provider.Audience,
		"SCOPEGATE_JWKS_URL":           &cfg.Provider.JWKSURL,
		"SCOPEGATE_CLIENT_ID":          &cfg.Provider.ClientID,
		"SCOPEGATE_CLIENT_SECRET":      &cfg.Provider.ClientSecret,
		"SCOPEGATE_AUTHORIZE_ENDPOINT": &cfg.Provider.AuthorizeEndpoint,
		"SCOPEGATE_TOKEN_ENDPOINT":     &cfg.Provider.TokenEndpoint,
	} {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}
}

// Validate checks the config for inconsistencies. It is called once after
// loading; the config is not re-validated per request.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Provider.Issuer == "" {
		return fmt.Errorf("provider issuer is required")
	}

	if !c.Provider.DiscoverEndpoints {
		if c.Provider.JWKSURL == "" {
			return fmt.Errorf("provider jwks_url is required when endpoint discovery is disabled")
		}
		if c.Provider.AuthorizeEndpoint == "" || c.Provider.TokenEndpoint == "" {
			return fmt.Errorf("provider authorize and token endpoints are required when endpoint discovery is disabled")
		}
	}

	for _, endpoint := range []string{
		c.Provider.JWKSURL,
		c.Provider.AuthorizeEndpoint,
		c.Provider.TokenEndpoint,
	} {
		if endpoint == "" {
			continue
		}
		if err := networking.ValidateEndpointURL(endpoint); err != nil {
			return fmt.Errorf("invalid provider endpoint: %w", err)
		}
	}

	if c.Provider.ClockSkew < 0 {
		return fmt.Errorf("clock_skew must not be negative")
	}
	if c.Provider.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	seen := make(map[string]struct{}, len(c.Routes))
	for _, route := range c.Routes {
		if route.Path == "" {
			return fmt.Errorf("route with empty path")
		}
		if _, dup := seen[route.Path]; dup {
			return fmt.Errorf("duplicate route path: %s", route.Path)
		}
		seen[route.Path] = struct{}{}
		if len(route.RequiredScopes) > 0 && !route.RequiresAuth {
			return fmt.Errorf("route %s declares scopes but not requires_auth", route.Path)
		}
	}

	return nil
}
