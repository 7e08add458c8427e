package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractBearer returns the compact token from an Authorization header
// value. The header must use the Bearer scheme; anything else is a
// malformed credential.
func ExtractBearer(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", ErrMalformedCredential)
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: invalid Authorization header format", ErrMalformedCredential)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer token", ErrMalformedCredential)
	}
	return token, nil
}

// DecodeUnverified splits a compact token into its structural segments and
// decodes the header and payload. No signature or expiry checks are
// performed; the result is explicitly untrusted.
func DecodeUnverified(token string) (*UnverifiedClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: token must have three segments", ErrMalformedCredential)
	}

	var header map[string]any
	if err := decodeSegment(parts[0], &header); err != nil {
		return nil, fmt.Errorf("%w: bad header segment: %v", ErrMalformedCredential, err)
	}

	var claims map[string]any
	if err := decodeSegment(parts[1], &claims); err != nil {
		return nil, fmt.Errorf("%w: bad payload segment: %v", ErrMalformedCredential, err)
	}

	return &UnverifiedClaims{Header: header, Claims: claims}, nil
}

func decodeSegment(seg string, out any) error {
	data, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
