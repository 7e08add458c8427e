package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/oauth2-proxy/mockoidc"
)

const testKeyID = "test-key-1"

// newTestKeySet generates an RSA key pair and the matching JWKS.
func newTestKeySet(t *testing.T) (*rsa.PrivateKey, jwk.Set) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key pair: %v", err)
	}

	key, err := jwk.Import(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("Failed to create JWK from public key: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, testKeyID); err != nil {
		t.Fatalf("Failed to set key ID: %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, "RS256"); err != nil {
		t.Fatalf("Failed to set algorithm: %v", err)
	}
	if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
		t.Fatalf("Failed to set key usage: %v", err)
	}

	keySet := jwk.NewSet()
	if err := keySet.AddKey(key); err != nil {
		t.Fatalf("Failed to add key to set: %v", err)
	}
	return privateKey, keySet
}

// newTestJWKSServer serves the key set over TLS and returns the server and
// a CA bundle path trusting its certificate.
func newTestJWKSServer(t *testing.T, keySet jwk.Set) (*httptest.Server, string) {
	t.Helper()

	jwksServer := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		buf, err := json.Marshal(keySet)
		if err != nil {
			t.Errorf("Failed to marshal key set: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(buf); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	t.Cleanup(jwksServer.Close)

	cert := jwksServer.Certificate()
	if cert == nil {
		t.Fatal("Test server has no certificate")
	}

	tmpFile, err := os.CreateTemp(t.TempDir(), "test-ca-*.crt")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	if err := pem.Encode(tmpFile, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}); err != nil {
		t.Fatalf("Failed to write certificate: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatalf("Failed to close temp file: %v", err)
	}

	return jwksServer, tmpFile.Name()
}

func signTestToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenString, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tokenString
}

//nolint:gocyclo // This test function is complex but manageable
func TestValidatorValidateToken(t *testing.T) {
	t.Parallel()

	privateKey, keySet := newTestKeySet(t)
	jwksServer, caCertPath := newTestJWKSServer(t, keySet)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate second RSA key pair: %v", err)
	}

	ctx := context.Background()
	validator, err := NewValidator(ctx, ValidatorConfig{
		Issuer:          "test-issuer",
		AcceptedIssuers: []string{"alt-issuer"},
		Audience:        "test-audience",
		JWKSURL:         jwksServer.URL,
		CACertPath:      caCertPath,
		AllowPrivateIP:  true,
	})
	if err != nil {
		t.Fatalf("Failed to create token validator: %v", err)
	}

	validClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   "test-issuer",
			"aud":   "test-audience",
			"sub":   "test-user",
			"scope": "read:messages write:messages",
			"iat":   time.Now().Add(-time.Minute).Unix(),
			"exp":   time.Now().Add(time.Hour).Unix(),
		}
	}

	testCases := []struct {
		name    string
		token   func() string
		errType error
	}{
		{
			name:  "Valid token",
			token: func() string { return signTestToken(t, privateKey, testKeyID, validClaims()) },
		},
		{
			name: "Accepted secondary issuer",
			token: func() string {
				claims := validClaims()
				claims["iss"] = "alt-issuer"
				return signTestToken(t, privateKey, testKeyID, claims)
			},
		},
		{
			name: "Recently expired token",
			token: func() string {
				claims := validClaims()
				claims["exp"] = time.Now().Add(-30 * time.Second).Unix()
				return signTestToken(t, privateKey, testKeyID, claims)
			},
			errType: ErrTokenExpired,
		},
		{
			name: "Issued slightly in the future within clock skew",
			token: func() string {
				claims := validClaims()
				claims["iat"] = time.Now().Add(30 * time.Second).Unix()
				return signTestToken(t, privateKey, testKeyID, claims)
			},
		},
		{
			name: "Invalid issuer",
			token: func() string {
				claims := validClaims()
				claims["iss"] = "wrong-issuer"
				return signTestToken(t, privateKey, testKeyID, claims)
			},
			errType: ErrInvalidIssuer,
		},
		{
			name: "Invalid audience",
			token: func() string {
				claims := validClaims()
				claims["aud"] = "wrong-audience"
				return signTestToken(t, privateKey, testKeyID, claims)
			},
			errType: ErrInvalidAudience,
		},
		{
			name: "Expired token",
			token: func() string {
				claims := validClaims()
				claims["exp"] = time.Now().Add(-time.Hour).Unix()
				return signTestToken(t, privateKey, testKeyID, claims)
			},
			errType: ErrTokenExpired,
		},
		{
			name: "Expired token with untrusted signature",
			token: func() string {
				claims := validClaims()
				claims["exp"] = time.Now().Add(-time.Hour).Unix()
				return signTestToken(t, otherKey, testKeyID, claims)
			},
			errType: ErrTokenExpired,
		},
		{
			name: "Issued in the future",
			token: func() string {
				claims := validClaims()
				claims["iat"] = time.Now().Add(time.Hour).Unix()
				return signTestToken(t, privateKey, testKeyID, claims)
			},
			errType: ErrTokenNotYetValid,
		},
		{
			name: "Untrusted signing key",
			token: func() string {
				return signTestToken(t, otherKey, testKeyID, validClaims())
			},
			errType: ErrInvalidSignature,
		},
		{
			name: "Unknown key ID",
			token: func() string {
				return signTestToken(t, privateKey, "no-such-key", validClaims())
			},
			errType: ErrInvalidSignature,
		},
		{
			name:    "Structurally invalid token",
			token:   func() string { return "not-a-token" },
			errType: ErrMalformedCredential,
		},
		{
			name:    "Empty token",
			token:   func() string { return "" },
			errType: ErrNoToken,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			claims, err := validator.ValidateToken(context.Background(), tc.token())

			if tc.errType != nil {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if !errors.Is(err, tc.errType) {
					t.Errorf("Expected error %v but got %v", tc.errType, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got %v", err)
			}
			if claims.Subject != "test-user" {
				t.Errorf("Expected subject test-user but got %q", claims.Subject)
			}
			if !HasScopes([]string{"read:messages", "write:messages"}, claims.GrantedScopes()) {
				t.Errorf("Expected granted scopes to include read and write, got %v", claims.GrantedScopes())
			}
		})
	}
}

func TestValidatorRejectsUnsignedAlgorithms(t *testing.T) {
	t.Parallel()

	_, keySet := newTestKeySet(t)
	jwksServer, caCertPath := newTestJWKSServer(t, keySet)

	validator, err := NewValidator(context.Background(), ValidatorConfig{
		Issuer:         "test-issuer",
		Audience:       "test-audience",
		JWKSURL:        jwksServer.URL,
		CACertPath:     caCertPath,
		AllowPrivateIP: true,
	})
	if err != nil {
		t.Fatalf("Failed to create token validator: %v", err)
	}

	// HMAC-signed token, even with the right claims, must never verify.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "test-issuer",
		"aud": "test-audience",
		"sub": "test-user",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = testKeyID
	tokenString, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	if _, err := validator.ValidateToken(context.Background(), tokenString); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature but got %v", err)
	}
}

func TestNewValidatorWithDiscovery(t *testing.T) {
	t.Parallel()

	m, err := mockoidc.Run()
	if err != nil {
		t.Fatalf("Failed to start mock OIDC server: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Shutdown(); err != nil {
			t.Errorf("Failed to shut down mock OIDC server: %v", err)
		}
	})

	ctx := context.Background()
	validator, err := NewValidator(ctx, ValidatorConfig{
		Issuer:         m.Issuer(),
		Audience:       m.Config().ClientID,
		AllowPrivateIP: true,
	})
	if err != nil {
		t.Fatalf("Failed to create token validator via discovery: %v", err)
	}

	if validator.JWKSURL() != m.JWKSEndpoint() {
		t.Errorf("Expected discovered JWKS URL %s but got %s", m.JWKSEndpoint(), validator.JWKSURL())
	}

	tokenString, err := m.Keypair.SignJWT(jwt.MapClaims{
		"iss":   m.Issuer(),
		"aud":   m.Config().ClientID,
		"sub":   "discovered-user",
		"scope": "read:messages",
		"iat":   time.Now().Add(-time.Minute).Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Failed to sign token with mock provider key: %v", err)
	}

	claims, err := validator.ValidateToken(ctx, tokenString)
	if err != nil {
		t.Fatalf("Expected no error but got %v", err)
	}
	if claims.Subject != "discovered-user" {
		t.Errorf("Expected subject discovered-user but got %q", claims.Subject)
	}
}
