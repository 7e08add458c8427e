package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/scopegate/scopegate/pkg/networking"
	"github.com/scopegate/scopegate/pkg/oidc"
)

// Common errors
var (
	ErrNoToken             = errors.New("no token provided")
	ErrMalformedCredential = errors.New("malformed credential")
	ErrInvalidSignature    = errors.New("token signature is invalid")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenNotYetValid    = errors.New("token not yet valid")
	ErrInvalidIssuer       = errors.New("invalid issuer")
	ErrInvalidAudience     = errors.New("invalid audience")
	ErrInvalidToken        = errors.New("invalid token")
	ErrMissingJWKSURL      = errors.New("missing JWKS URL")
)

// defaultClockSkew is applied to time-based claim checks when the config
// does not set one.
const defaultClockSkew = 60 * time.Second

// allowedAlgorithms is the signing algorithm allow-list. The provider signs
// access tokens with RSA keys.
var allowedAlgorithms = []string{"RS256"}

// Validator validates bearer JWTs against the identity provider's signing
// keys. It holds no per-request state and is safe for concurrent use.
type Validator struct {
	issuers   []string
	audience  string
	jwksURL   string
	clockSkew time.Duration

	jwksCache *jwk.Cache

	// Lazy JWKS registration
	jwksRegistered      bool
	jwksRegistrationMu  sync.Mutex
	jwksRegistrationErr error
}

// ValidatorConfig contains configuration for the token validator.
type ValidatorConfig struct {
	// Issuer is the expected token issuer and the base for OIDC discovery
	// when JWKSURL is empty.
	Issuer string

	// AcceptedIssuers lists additional issuer values to accept.
	AcceptedIssuers []string

	// Audience is the expected audience for the token.
	Audience string

	// JWKSURL is the URL to fetch the JWKS from. Discovered from the issuer
	// when empty.
	JWKSURL string

	// ClockSkew is the tolerance applied to exp/iat checks.
	ClockSkew time.Duration

	// CACertPath is the path to a CA certificate bundle for HTTPS requests.
	CACertPath string

	// AllowPrivateIP allows JWKS/OIDC endpoints on private IP addresses.
	AllowPrivateIP bool
}

// NewValidator creates a new token validator.
func NewValidator(ctx context.Context, config ValidatorConfig) (*Validator, error) {
	if config.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	httpClient, err := networking.NewHttpClientBuilder().
		WithCABundle(config.CACertPath).
		WithPrivateIPs(config.AllowPrivateIP).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	jwksURL := config.JWKSURL
	if jwksURL == "" {
		doc, err := oidc.DiscoverEndpointsWithClient(ctx, config.Issuer, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to discover JWKS URL: %w", err)
		}
		jwksURL = doc.JWKSURI
	}
	if jwksURL == "" {
		return nil, ErrMissingJWKSURL
	}

	// Create a new JWKS cache with auto-refresh.
	httprcClient := httprc.NewClient(httprc.WithHTTPClient(httpClient))
	cache, err := jwk.NewCache(ctx, httprcClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	skew := config.ClockSkew
	if skew <= 0 {
		skew = defaultClockSkew
	}

	issuers := append([]string{config.Issuer}, config.AcceptedIssuers...)

	// JWKS registration is done lazily on first use to avoid blocking startup.
	return &Validator{
		issuers:   issuers,
		audience:  config.Audience,
		jwksURL:   jwksURL,
		clockSkew: skew,
		jwksCache: cache,
	}, nil
}

// JWKSURL returns the JWKS URL the validator fetches keys from.
func (v *Validator) JWKSURL() string {
	return v.jwksURL
}

// Issuer returns the primary expected issuer.
func (v *Validator) Issuer() string {
	return v.issuers[0]
}

// ensureJWKSRegistered ensures that the JWKS URL is registered with the cache.
func (v *Validator) ensureJWKSRegistered(ctx context.Context) error {
	v.jwksRegistrationMu.Lock()
	defer v.jwksRegistrationMu.Unlock()

	if v.jwksRegistered {
		return v.jwksRegistrationErr
	}

	registrationCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := v.jwksCache.Register(registrationCtx, v.jwksURL); err != nil {
		v.jwksRegistrationErr = fmt.Errorf("failed to register JWKS URL: %w", err)
	} else {
		v.jwksRegistrationErr = nil
	}

	v.jwksRegistered = true
	return v.jwksRegistrationErr
}

// getKeyFromJWKS gets the signing key referenced by the token header.
func (v *Validator) getKeyFromJWKS(ctx context.Context, token *jwt.Token) (any, error) {
	if err := v.ensureJWKSRegistered(ctx); err != nil {
		return nil, err
	}

	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header missing kid")
	}

	keySet, err := v.jwksCache.Lookup(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}

	var rawKey any
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}

	return rawKey, nil
}

// validateClaims validates issuer, audience and time claims. The parser only
// verifies the signature; all claim checks live here. exp is strict, with no
// leeway: a token whose expiry has passed is rejected even when the clocks
// disagree by less than the skew. The skew applies to iat and nbf only.
func (v *Validator) validateClaims(claims jwt.MapClaims, now time.Time) error {
	issuerClaim, err := claims.GetIssuer()
	if err != nil || issuerClaim == "" {
		return ErrInvalidIssuer
	}
	issuerOK := false
	for _, iss := range v.issuers {
		if strings.TrimSpace(issuerClaim) == strings.TrimSpace(iss) {
			issuerOK = true
			break
		}
	}
	if !issuerOK {
		return ErrInvalidIssuer
	}

	if v.audience != "" {
		audiences, err := claims.GetAudience()
		if err != nil {
			return ErrInvalidAudience
		}

		found := false
		for _, aud := range audiences {
			if aud == v.audience {
				found = true
				break
			}
		}
		if !found {
			return ErrInvalidAudience
		}
	}

	expirationTime, err := claims.GetExpirationTime()
	if err != nil || expirationTime == nil {
		return fmt.Errorf("%w: missing exp claim", ErrInvalidToken)
	}
	if !expirationTime.After(now) {
		return ErrTokenExpired
	}

	if notBefore, err := claims.GetNotBefore(); err == nil && notBefore != nil {
		if notBefore.After(now.Add(v.clockSkew)) {
			return ErrTokenNotYetValid
		}
	}

	if issuedAt, err := claims.GetIssuedAt(); err == nil && issuedAt != nil {
		if issuedAt.After(now.Add(v.clockSkew)) {
			return ErrTokenNotYetValid
		}
	}

	return nil
}

// ValidateToken validates a token and returns the verified claim set.
// All failures are terminal for the request; nothing is retried here.
func (v *Validator) ValidateToken(ctx context.Context, tokenString string) (*ClaimSet, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	// Expiry is checked before the signature so that an expired token is
	// always reported as expired, whatever key it was signed with.
	if err := v.checkExpiryUnverified(tokenString); err != nil {
		return nil, err
	}

	token, err := jwt.Parse(tokenString,
		func(token *jwt.Token) (any, error) {
			return v.getKeyFromJWKS(ctx, token)
		},
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	if err := v.validateClaims(claims, time.Now()); err != nil {
		return nil, err
	}

	return newClaimSet(claims)
}

// checkExpiryUnverified inspects the exp claim without verifying the
// signature. Only a conclusive expiry is reported here; everything else is
// left to the verifying parse.
func (v *Validator) checkExpiryUnverified(tokenString string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}

	expirationTime, err := claims.GetExpirationTime()
	if err != nil || expirationTime == nil {
		return nil
	}
	if !expirationTime.After(time.Now()) {
		return ErrTokenExpired
	}
	return nil
}

// classifyParseError maps golang-jwt parse failures onto the gateway's
// error taxonomy.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrTokenNotYetValid
	default:
		// Key lookup failures land here: a token signed with an unknown or
		// mismatched key cannot have its signature verified.
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}

// EscapeQuotes escapes quotes in a string for use in a quoted-string context.
func EscapeQuotes(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// buildWWWAuthenticate builds an RFC 6750 compliant value for the
// WWW-Authenticate header. It always includes realm and, if includeError is
// true, appends error="invalid_token" and an optional description.
func (v *Validator) buildWWWAuthenticate(includeError bool, errDescription string) string {
	parts := []string{fmt.Sprintf(`realm="%s"`, EscapeQuotes(v.Issuer()))}

	if includeError {
		parts = append(parts, `error="invalid_token"`)
		if errDescription != "" {
			parts = append(parts, fmt.Sprintf(`error_description="%s"`, EscapeQuotes(errDescription)))
		}
	}
	return "Bearer " + strings.Join(parts, ", ")
}

// buildInsufficientScope builds an RFC 6750 WWW-Authenticate value for a
// scope failure, advertising the scopes the route requires.
func (v *Validator) buildInsufficientScope(requiredScopes []string) string {
	parts := []string{
		fmt.Sprintf(`realm="%s"`, EscapeQuotes(v.Issuer())),
		`error="insufficient_scope"`,
	}
	if len(requiredScopes) > 0 {
		parts = append(parts, fmt.Sprintf(`scope="%s"`, EscapeQuotes(strings.Join(requiredScopes, " "))))
	}
	return "Bearer " + strings.Join(parts, ", ")
}
