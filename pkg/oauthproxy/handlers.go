package oauthproxy

import (
	"net/http"

	apierrors "github.com/scopegate/scopegate/pkg/api/errors"
	"github.com/scopegate/scopegate/pkg/logger"
)

// AuthorizeHandler handles GET /authorize requests. A valid request is
// answered with a 302 redirect to the provider's authorization endpoint;
// the gateway renders no consent UI of its own.
func (p *Proxy) AuthorizeHandler() apierrors.HandlerWithError {
	return func(w http.ResponseWriter, r *http.Request) error {
		req, err := ParseAuthorizeRequest(r.URL.Query())
		if err != nil {
			return err
		}

		target := p.AuthorizeRedirectURL(req)
		logger.Debugw("redirecting authorize request to provider",
			"client_id", req.ClientID,
		)
		http.Redirect(w, r, target, http.StatusFound)
		return nil
	}
}

// TokenHandler handles POST /token requests. The form body is forwarded to
// the provider unchanged and the provider's status, content type and body
// are relayed back as-is. Token material is never logged.
func (p *Proxy) TokenHandler() apierrors.HandlerWithError {
	return func(w http.ResponseWriter, r *http.Request) error {
		req, err := ParseTokenRequest(r.Body)
		if err != nil {
			return err
		}

		resp, err := p.ExchangeToken(r.Context(), req)
		if err != nil {
			return err
		}

		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := w.Write(resp.Body); err != nil {
			logger.Errorf("failed to relay token response: %v", err)
		}
		return nil
	}
}
