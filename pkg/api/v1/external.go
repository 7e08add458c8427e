package v1

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/scopegate/scopegate/pkg/api/errors"
	"github.com/scopegate/scopegate/pkg/auth"
	"github.com/scopegate/scopegate/pkg/config"
	scerr "github.com/scopegate/scopegate/pkg/errors"
	"github.com/scopegate/scopegate/pkg/networking"
)

// maxUpstreamResponseSize caps relayed upstream bodies.
const maxUpstreamResponseSize = 4 << 20 // 4MB

// ExternalRouter sets up the routes that forward to external services.
func ExternalRouter(upstreams config.Upstreams, client networking.HTTPClient) http.Handler {
	routes := &externalRoutes{upstreams: upstreams, client: client}
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/users", apierrors.HandlerWithError(routes.getUsers))
	r.Method(http.MethodGet, "/weather", apierrors.HandlerWithError(routes.getWeather))
	return r
}

// CustomRouter sets up the catch-all passthrough to the configured custom
// upstream. The endpoint path segment picks the upstream resource.
func CustomRouter(upstreams config.Upstreams, client networking.HTTPClient) http.Handler {
	routes := &externalRoutes{upstreams: upstreams, client: client}
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/{endpoint}", apierrors.HandlerWithError(routes.getCustom))
	return r
}

type externalRoutes struct {
	upstreams config.Upstreams
	client    networking.HTTPClient
}

// externalResponse wraps an upstream payload together with who asked for it
// and where it came from.
type externalResponse struct {
	Status   string          `json:"status"`
	User     string          `json:"user,omitempty"`
	Endpoint string          `json:"endpoint,omitempty"`
	Data     json.RawMessage `json:"data"`
	Source   string          `json:"source"`
}

func (e *externalRoutes) getUsers(w http.ResponseWriter, r *http.Request) error {
	if e.upstreams.UsersURL == "" {
		return scerr.NewInternalError("users upstream is not configured", nil)
	}

	data, err := e.fetch(r, e.upstreams.UsersURL, "")
	if err != nil {
		return err
	}
	writeJSON(w, externalResponse{
		Status: "success",
		Data:   data,
		Source: "External API: " + e.upstreams.UsersURL,
	})
	return nil
}

func (e *externalRoutes) getWeather(w http.ResponseWriter, r *http.Request) error {
	if e.upstreams.WeatherURL == "" {
		return scerr.NewInternalError("weather upstream is not configured", nil)
	}

	// The weather upstream wants the caller's bearer token.
	data, err := e.fetch(r, e.upstreams.WeatherURL, r.Header.Get("Authorization"))
	if err != nil {
		return err
	}
	writeJSON(w, externalResponse{
		Status: "success",
		User:   subjectFromContext(r),
		Data:   data,
		Source: "External API: " + e.upstreams.WeatherURL,
	})
	return nil
}

func (e *externalRoutes) getCustom(w http.ResponseWriter, r *http.Request) error {
	if e.upstreams.CustomBaseURL == "" {
		return scerr.NewInternalError("custom upstream is not configured", nil)
	}

	endpoint := chi.URLParam(r, "endpoint")
	target, err := url.JoinPath(e.upstreams.CustomBaseURL, endpoint)
	if err != nil {
		return scerr.NewInvalidOAuthParameterError(
			fmt.Sprintf("endpoint %q does not form a valid upstream URL", endpoint), err)
	}

	data, err := e.fetch(r, target, r.Header.Get("Authorization"))
	if err != nil {
		return err
	}
	writeJSON(w, externalResponse{
		Status:   "success",
		User:     subjectFromContext(r),
		Endpoint: endpoint,
		Data:     data,
		Source:   "Custom API: " + e.upstreams.CustomBaseURL,
	})
	return nil
}

// fetch issues a GET to the upstream and returns its JSON body.
func (e *externalRoutes) fetch(r *http.Request, target, authorization string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		return nil, scerr.NewInternalError("failed to build upstream request", err)
	}
	req.Header.Set("Accept", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, scerr.NewUpstreamUnavailableError("External service is unavailable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponseSize))
	if err != nil {
		return nil, scerr.NewUpstreamUnavailableError("External service response could not be read", err)
	}
	if !json.Valid(body) {
		return nil, scerr.NewUpstreamUnavailableError("External service returned a malformed response", nil)
	}
	return body, nil
}

// subjectFromContext returns the verified subject, or the empty string on
// routes the middleware lets through without authentication.
func subjectFromContext(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.Subject
	}
	return ""
}
