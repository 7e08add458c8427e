// Package api contains the HTTP surface of the gateway: the router, the
// middleware chain and the server lifecycle.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	v1 "github.com/scopegate/scopegate/pkg/api/v1"
	"github.com/scopegate/scopegate/pkg/auth"
	"github.com/scopegate/scopegate/pkg/config"
	"github.com/scopegate/scopegate/pkg/logger"
	"github.com/scopegate/scopegate/pkg/networking"
	"github.com/scopegate/scopegate/pkg/oauthproxy"
	"github.com/scopegate/scopegate/pkg/telemetry"
)

// Not sure if these values need to be configurable.
const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// BuildRouteTable converts the configured route plans into the table the
// authentication middleware consults.
func BuildRouteTable(plans []config.RoutePlan) auth.RouteTable {
	table := make(auth.RouteTable, len(plans))
	for _, plan := range plans {
		table[plan.Path] = auth.RoutePolicy{
			RequiresAuth:   plan.RequiresAuth,
			RequiredScopes: plan.RequiredScopes,
		}
	}
	return table
}

// NewRouter builds the full gateway router: telemetry and authentication
// middleware in front of the demo routes, the OAuth proxy endpoints and the
// discovery metadata.
func NewRouter(
	cfg *config.Config,
	validator *auth.Validator,
	proxy *oauthproxy.Proxy,
	upstreamClient networking.HTTPClient,
	metrics *telemetry.Provider,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
		headersMiddleware,
	)

	if metrics != nil {
		r.Use(telemetry.NewHTTPMiddleware(metrics.MeterProvider()))
	}

	routeTable := BuildRouteTable(cfg.Routes)
	r.Use(auth.Middleware(validator, routeTable))

	r.Mount("/health", v1.HealthcheckRouter())
	r.Mount("/version", v1.VersionRouter())
	r.Mount("/api", v1.Router(cfg.Upstreams, upstreamClient))

	r.Method(http.MethodGet, "/authorize", proxy.AuthorizeHandler())
	r.Method(http.MethodPost, "/token", proxy.TokenHandler())

	r.Handle("/.well-known/oauth-protected-resource", auth.NewAuthInfoHandler(
		validator.Issuer(),
		validator.JWKSURL(),
		cfg.Server.ResourceURL(),
		routeTable,
	))

	if metrics != nil {
		r.Handle("/metrics", metrics.PrometheusHandler())
	}

	return r
}

// Serve builds the gateway from its config and serves it until the context
// is cancelled. It is assumed that the caller sets up signal handling.
func Serve(ctx context.Context, cfg *config.Config) error {
	validator, err := auth.NewValidator(ctx, auth.ValidatorConfig{
		Issuer:          cfg.Provider.Issuer,
		AcceptedIssuers: cfg.Provider.AcceptedIssuers,
		Audience:        cfg.Provider.Audience,
		JWKSURL:         cfg.Provider.JWKSURL,
		ClockSkew:       cfg.Provider.ClockSkew,
		CACertPath:      cfg.Provider.CACertPath,
		AllowPrivateIP:  cfg.Provider.AllowPrivateIP,
	})
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}

	proxy, err := oauthproxy.New(ctx, oauthproxy.Config{
		Issuer:            cfg.Provider.Issuer,
		AuthorizeEndpoint: cfg.Provider.AuthorizeEndpoint,
		TokenEndpoint:     cfg.Provider.TokenEndpoint,
		ClientID:          cfg.Provider.ClientID,
		ClientSecret:      cfg.Provider.ClientSecret,
		CACertPath:        cfg.Provider.CACertPath,
		AllowPrivateIP:    cfg.Provider.AllowPrivateIP,
		RequestTimeout:    cfg.Provider.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create OAuth proxy: %w", err)
	}

	upstreamClient, err := networking.NewHttpClientBuilder().
		WithTimeout(cfg.Provider.RequestTimeout).
		WithPrivateIPs(cfg.Provider.AllowPrivateIP).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create upstream HTTP client: %w", err)
	}

	var metrics *telemetry.Provider
	if cfg.Telemetry.EnableMetricsPath {
		metrics, err = telemetry.NewProvider(telemetry.Config{
			EnableMetricsPath:     cfg.Telemetry.EnableMetricsPath,
			IncludeRuntimeMetrics: cfg.Telemetry.IncludeRuntimeMetrics,
		})
		if err != nil {
			return fmt.Errorf("failed to create telemetry provider: %w", err)
		}
	}

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              cfg.Server.Address(),
		Handler:           NewRouter(cfg, validator, proxy, upstreamClient, metrics),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", cfg.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Address(), err)
	}

	logger.Infof("starting HTTP server on %s", listener.Addr())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if metrics != nil {
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				logger.Warnf("telemetry shutdown failed: %v", err)
			}
		}
		return nil
	})

	return group.Wait()
}
