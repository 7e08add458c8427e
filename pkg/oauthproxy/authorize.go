package oauthproxy

import (
	"fmt"
	"net/url"

	"golang.org/x/oauth2"

	scerr "github.com/scopegate/scopegate/pkg/errors"
)

// AuthorizeRequest is a validated inbound authorize call. It lives only for
// the duration of the request; nothing about it is persisted.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
}

// ParseAuthorizeRequest validates the query parameters of an authorize
// call. Every failure names the offending parameter.
func ParseAuthorizeRequest(query url.Values) (*AuthorizeRequest, error) {
	responseType := query.Get("response_type")
	if responseType == "" {
		return nil, scerr.NewInvalidOAuthParameterError("response_type is required", nil)
	}
	if responseType != "code" {
		return nil, scerr.NewInvalidOAuthParameterError(
			fmt.Sprintf("response_type must be code, got %q", responseType), nil)
	}

	clientID := query.Get("client_id")
	if clientID == "" {
		return nil, scerr.NewInvalidOAuthParameterError("client_id is required", nil)
	}

	redirectURI := query.Get("redirect_uri")
	if redirectURI == "" {
		return nil, scerr.NewInvalidOAuthParameterError("redirect_uri is required", nil)
	}
	if u, err := url.Parse(redirectURI); err != nil || !u.IsAbs() {
		return nil, scerr.NewInvalidOAuthParameterError("redirect_uri must be an absolute URL", err)
	}

	return &AuthorizeRequest{
		ResponseType: responseType,
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		Scope:        query.Get("scope"),
		State:        query.Get("state"),
	}, nil
}

// AuthorizeRedirectURL builds the provider URL the client is redirected to.
// The scope and state parameters are carried through verbatim; building the
// URL twice for the same request yields the same URL.
func (p *Proxy) AuthorizeRedirectURL(req *AuthorizeRequest) string {
	conf := oauth2.Config{
		ClientID:    req.ClientID,
		RedirectURL: req.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL: p.endpoints.AuthorizeEndpoint,
		},
	}

	var opts []oauth2.AuthCodeOption
	if req.Scope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", req.Scope))
	}

	return conf.AuthCodeURL(req.State, opts...)
}
