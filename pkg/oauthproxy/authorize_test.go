package oauthproxy

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scerr "github.com/scopegate/scopegate/pkg/errors"
)

func newTestProxy(t *testing.T, authorizeEndpoint, tokenEndpoint string) *Proxy {
	t.Helper()

	proxy, err := New(context.Background(), Config{
		Issuer:            "https://provider.example.com",
		AuthorizeEndpoint: authorizeEndpoint,
		TokenEndpoint:     tokenEndpoint,
		AllowPrivateIP:    true,
	})
	require.NoError(t, err)
	return proxy
}

func TestParseAuthorizeRequest(t *testing.T) {
	t.Parallel()

	valid := url.Values{
		"response_type": {"code"},
		"client_id":     {"client-123"},
		"redirect_uri":  {"https://app.example.com/callback"},
		"scope":         {"read:messages write:messages"},
		"state":         {"xyzzy"},
	}

	t.Run("valid request", func(t *testing.T) {
		t.Parallel()
		req, err := ParseAuthorizeRequest(valid)
		require.NoError(t, err)
		assert.Equal(t, "code", req.ResponseType)
		assert.Equal(t, "client-123", req.ClientID)
		assert.Equal(t, "https://app.example.com/callback", req.RedirectURI)
		assert.Equal(t, "read:messages write:messages", req.Scope)
		assert.Equal(t, "xyzzy", req.State)
	})

	t.Run("optional parameters may be absent", func(t *testing.T) {
		t.Parallel()
		q := url.Values{
			"response_type": {"code"},
			"client_id":     {"client-123"},
			"redirect_uri":  {"https://app.example.com/callback"},
		}
		req, err := ParseAuthorizeRequest(q)
		require.NoError(t, err)
		assert.Empty(t, req.Scope)
		assert.Empty(t, req.State)
	})

	invalidCases := []struct {
		name       string
		mutate     func(url.Values)
		wantDetail string
	}{
		{
			name:       "missing response_type",
			mutate:     func(q url.Values) { q.Del("response_type") },
			wantDetail: "response_type is required",
		},
		{
			name:       "unsupported response_type",
			mutate:     func(q url.Values) { q.Set("response_type", "token") },
			wantDetail: `response_type must be code, got "token"`,
		},
		{
			name:       "missing client_id",
			mutate:     func(q url.Values) { q.Del("client_id") },
			wantDetail: "client_id is required",
		},
		{
			name:       "missing redirect_uri",
			mutate:     func(q url.Values) { q.Del("redirect_uri") },
			wantDetail: "redirect_uri is required",
		},
		{
			name:       "relative redirect_uri",
			mutate:     func(q url.Values) { q.Set("redirect_uri", "/callback") },
			wantDetail: "redirect_uri must be an absolute URL",
		},
	}

	for _, tc := range invalidCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q := url.Values{}
			for k, v := range valid {
				q[k] = append([]string(nil), v...)
			}
			tc.mutate(q)

			_, err := ParseAuthorizeRequest(q)
			require.Error(t, err)
			assert.True(t, scerr.IsType(err, scerr.ErrInvalidOAuthParameter))

			var typed *scerr.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, tc.wantDetail, typed.Message)
		})
	}
}

func TestAuthorizeRedirectURL(t *testing.T) {
	t.Parallel()

	proxy := newTestProxy(t,
		"https://provider.example.com/oauth/authorize",
		"https://provider.example.com/oauth/token",
	)

	req := &AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "client-123",
		RedirectURI:  "https://app.example.com/callback",
		Scope:        "read:messages write:messages",
		State:        "xyzzy",
	}

	target := proxy.AuthorizeRedirectURL(req)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "provider.example.com", parsed.Host)
	assert.Equal(t, "/oauth/authorize", parsed.Path)

	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, "read:messages write:messages", q.Get("scope"))
	assert.Equal(t, "xyzzy", q.Get("state"))

	// Building the URL again for the same request changes nothing.
	assert.Equal(t, target, proxy.AuthorizeRedirectURL(req))
}

func TestAuthorizeRedirectURLOmitsEmptyOptionals(t *testing.T) {
	t.Parallel()

	proxy := newTestProxy(t,
		"https://provider.example.com/oauth/authorize",
		"https://provider.example.com/oauth/token",
	)

	target := proxy.AuthorizeRedirectURL(&AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "client-123",
		RedirectURI:  "https://app.example.com/callback",
	})

	parsed, err := url.Parse(target)
	require.NoError(t, err)

	q := parsed.Query()
	assert.False(t, q.Has("scope"))
	assert.False(t, q.Has("state"))
}
