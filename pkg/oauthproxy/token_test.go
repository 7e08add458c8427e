package oauthproxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scerr "github.com/scopegate/scopegate/pkg/errors"
)

func TestParseTokenRequest(t *testing.T) {
	t.Parallel()

	t.Run("valid request keeps the raw body", func(t *testing.T) {
		t.Parallel()
		body := "grant_type=authorization_code&code=abc123&redirect_uri=https%3A%2F%2Fapp.example.com%2Fcallback"
		req, err := ParseTokenRequest(strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, "authorization_code", req.GrantType)
		assert.Equal(t, "abc123", req.Code)
		assert.Equal(t, body, string(req.RawBody))
	})

	invalidCases := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{
			name:       "missing grant_type",
			body:       "code=abc123",
			wantDetail: "grant_type is required",
		},
		{
			name:       "unsupported grant_type",
			body:       "grant_type=client_credentials&code=abc123",
			wantDetail: `grant_type must be authorization_code, got "client_credentials"`,
		},
		{
			name:       "missing code",
			body:       "grant_type=authorization_code",
			wantDetail: "code is required",
		},
		{
			name:       "unparseable form",
			body:       "grant_type=%zz",
			wantDetail: "request body is not a valid form",
		},
	}

	for _, tc := range invalidCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseTokenRequest(strings.NewReader(tc.body))
			require.Error(t, err)
			assert.True(t, scerr.IsType(err, scerr.ErrInvalidOAuthParameter))

			var typed *scerr.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, tc.wantDetail, typed.Message)
		})
	}
}

func TestExchangeTokenRelaysVerbatim(t *testing.T) {
	t.Parallel()

	const providerBody = `{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`

	var gotBody string
	var gotContentType string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = string(raw)
		gotContentType = r.Header.Get("Content-Type")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(providerBody))
	}))
	t.Cleanup(provider.Close)

	proxy := newTestProxy(t, provider.URL+"/authorize", provider.URL+"/token")

	body := "grant_type=authorization_code&code=abc123"
	req, err := ParseTokenRequest(strings.NewReader(body))
	require.NoError(t, err)

	resp, err := proxy.ExchangeToken(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, body, gotBody)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Equal(t, providerBody, string(resp.Body))
}

func TestExchangeTokenDefaultsClientCredentials(t *testing.T) {
	t.Parallel()

	var gotForm url.Values
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	}))
	t.Cleanup(provider.Close)

	proxy, err := New(context.Background(), Config{
		Issuer:            "https://provider.example.com",
		AuthorizeEndpoint: provider.URL + "/authorize",
		TokenEndpoint:     provider.URL + "/token",
		ClientID:          "gateway-client",
		ClientSecret:      "gateway-secret",
		AllowPrivateIP:    true,
	})
	require.NoError(t, err)

	t.Run("fills in credentials when the caller omits client_id", func(t *testing.T) {
		req, err := ParseTokenRequest(strings.NewReader("grant_type=authorization_code&code=abc123"))
		require.NoError(t, err)

		_, err = proxy.ExchangeToken(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, "abc123", gotForm.Get("code"))
		assert.Equal(t, "gateway-client", gotForm.Get("client_id"))
		assert.Equal(t, "gateway-secret", gotForm.Get("client_secret"))
	})

	t.Run("leaves a caller-supplied client_id alone", func(t *testing.T) {
		req, err := ParseTokenRequest(strings.NewReader(
			"grant_type=authorization_code&code=abc123&client_id=caller-client"))
		require.NoError(t, err)

		_, err = proxy.ExchangeToken(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, "caller-client", gotForm.Get("client_id"))
		assert.Empty(t, gotForm.Get("client_secret"))
	})
}

func TestExchangeTokenRelaysProviderErrors(t *testing.T) {
	t.Parallel()

	// Provider rejections pass through untouched; the gateway does not
	// rewrite them into its own envelope.
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	t.Cleanup(provider.Close)

	proxy := newTestProxy(t, provider.URL+"/authorize", provider.URL+"/token")

	req, err := ParseTokenRequest(strings.NewReader("grant_type=authorization_code&code=used-up"))
	require.NoError(t, err)

	resp, err := proxy.ExchangeToken(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"invalid_grant"}`, string(resp.Body))
}

func TestExchangeTokenProviderDown(t *testing.T) {
	t.Parallel()

	// Start and immediately stop a server to get a dead loopback address.
	provider := httptest.NewServer(http.NotFoundHandler())
	deadURL := provider.URL
	provider.Close()

	proxy := newTestProxy(t, deadURL+"/authorize", deadURL+"/token")

	req, err := ParseTokenRequest(strings.NewReader("grant_type=authorization_code&code=abc123"))
	require.NoError(t, err)

	_, err = proxy.ExchangeToken(context.Background(), req)
	require.Error(t, err)
	assert.True(t, scerr.IsType(err, scerr.ErrProviderUnavailable))
	assert.Equal(t, http.StatusBadGateway, scerr.Code(err))
}

func TestExchangeTokenIsAttemptedOnce(t *testing.T) {
	t.Parallel()

	var calls int
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(provider.Close)

	proxy := newTestProxy(t, provider.URL+"/authorize", provider.URL+"/token")

	req, err := ParseTokenRequest(strings.NewReader("grant_type=authorization_code&code=abc123"))
	require.NoError(t, err)

	resp, err := proxy.ExchangeToken(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestAuthorizeHandler(t *testing.T) {
	t.Parallel()

	proxy := newTestProxy(t,
		"https://provider.example.com/oauth/authorize",
		"https://provider.example.com/oauth/token",
	)
	handler := proxy.AuthorizeHandler()

	t.Run("valid request redirects to provider", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet,
			"/authorize?response_type=code&client_id=client-123&redirect_uri=https%3A%2F%2Fapp.example.com%2Fcallback&state=xyzzy", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "provider.example.com", location.Host)
		assert.Equal(t, "xyzzy", location.Query().Get("state"))
	})

	t.Run("invalid request yields a 400 envelope", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/authorize?response_type=token&client_id=client-123&redirect_uri=https%3A%2F%2Fapp.example.com%2Fcallback", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)

		var envelope struct {
			Detail     string `json:"detail"`
			StatusCode int    `json:"status_code"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
		assert.Equal(t, http.StatusBadRequest, envelope.StatusCode)
		assert.Contains(t, envelope.Detail, "response_type")
	})
}

func TestTokenHandler(t *testing.T) {
	t.Parallel()

	const providerBody = `{"access_token":"tok-456","token_type":"Bearer"}`
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(providerBody))
	}))
	t.Cleanup(provider.Close)

	proxy := newTestProxy(t, provider.URL+"/authorize", provider.URL+"/token")
	handler := proxy.TokenHandler()

	t.Run("valid exchange relays the provider response", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/token",
			strings.NewReader("grant_type=authorization_code&code=abc123"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, providerBody, rec.Body.String())
	})

	t.Run("invalid parameter yields a 400 envelope", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/token",
			strings.NewReader("grant_type=authorization_code"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)

		var envelope struct {
			Detail     string `json:"detail"`
			StatusCode int    `json:"status_code"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
		assert.Equal(t, "code is required", envelope.Detail)
	})
}
