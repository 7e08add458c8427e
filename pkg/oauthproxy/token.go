package oauthproxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	scerr "github.com/scopegate/scopegate/pkg/errors"
	"github.com/scopegate/scopegate/pkg/logger"
)

// maxTokenResponseSize caps the provider response body that is relayed.
const maxTokenResponseSize = 1 << 20 // 1MB

// formContentType is the media type of the forwarded token request.
const formContentType = "application/x-www-form-urlencoded"

// TokenRequest is a validated inbound token exchange call. RawBody is the
// unmodified form body so the forward stays byte-for-byte identical.
type TokenRequest struct {
	GrantType string
	Code      string

	// ClientID is the caller-supplied client_id, empty when omitted.
	ClientID string

	RawBody []byte
}

// RelayedResponse carries the provider's token response back unmodified.
type RelayedResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ParseTokenRequest reads and validates a token exchange body. The raw
// bytes are retained for verbatim forwarding; validation only inspects
// them. Every failure names the offending parameter.
func ParseTokenRequest(body io.Reader) (*TokenRequest, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxTokenResponseSize))
	if err != nil {
		return nil, scerr.NewInvalidOAuthParameterError("request body could not be read", err)
	}

	form, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, scerr.NewInvalidOAuthParameterError("request body is not a valid form", err)
	}

	grantType := form.Get("grant_type")
	if grantType == "" {
		return nil, scerr.NewInvalidOAuthParameterError("grant_type is required", nil)
	}
	if grantType != "authorization_code" {
		return nil, scerr.NewInvalidOAuthParameterError(
			fmt.Sprintf("grant_type must be authorization_code, got %q", grantType), nil)
	}

	if form.Get("code") == "" {
		return nil, scerr.NewInvalidOAuthParameterError("code is required", nil)
	}

	return &TokenRequest{
		GrantType: grantType,
		Code:      form.Get("code"),
		ClientID:  form.Get("client_id"),
		RawBody:   raw,
	}, nil
}

// forwardBody returns the form body to send to the provider. The caller's
// form goes through untouched; the gateway's own client credentials are
// appended only when the caller sent no client_id.
func (p *Proxy) forwardBody(req *TokenRequest) []byte {
	if p.clientID == "" || req.ClientID != "" {
		return req.RawBody
	}

	creds := url.Values{"client_id": {p.clientID}}
	if p.clientSecret != "" {
		creds.Set("client_secret", p.clientSecret)
	}
	body := append([]byte{}, req.RawBody...)
	body = append(body, '&')
	return append(body, creds.Encode()...)
}

// ExchangeToken forwards the token request to the provider and relays the
// response verbatim, success or failure alike. The exchange is attempted
// exactly once; an authorization code is single-use, so a retry could never
// succeed and might mask a consumed code.
func (p *Proxy) ExchangeToken(ctx context.Context, req *TokenRequest) (*RelayedResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, p.endpoints.TokenEndpoint, bytes.NewReader(p.forwardBody(req)))
	if err != nil {
		return nil, scerr.NewInternalError("failed to build provider request", err)
	}
	httpReq.Header.Set("Content-Type", formContentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		// The response detail never carries the underlying error; the
		// correlation ID ties it back to the log line instead.
		correlationID := uuid.NewString()
		logger.Errorw("token exchange request failed",
			"correlation_id", correlationID,
			"token_endpoint", p.endpoints.TokenEndpoint,
			"error", err,
		)
		return nil, scerr.NewProviderUnavailableError(
			fmt.Sprintf("Identity provider is unavailable (correlation %s)", correlationID), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		correlationID := uuid.NewString()
		logger.Errorw("failed to read token exchange response",
			"correlation_id", correlationID,
			"status", resp.StatusCode,
			"error", err,
		)
		return nil, scerr.NewProviderMalformedResponseError(
			fmt.Sprintf("Identity provider response could not be read (correlation %s)", correlationID), err)
	}

	return &RelayedResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
