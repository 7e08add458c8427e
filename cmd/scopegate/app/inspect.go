package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/spf13/cobra"

	"github.com/scopegate/scopegate/pkg/auth"
)

// newInspectTokenCmd creates the inspect-token command. It decodes a token
// without verifying it, which is handy when debugging why the gateway
// rejects a credential.
func newInspectTokenCmd() *cobra.Command {
	var jwksURL string

	cmd := &cobra.Command{
		Use:   "inspect-token <token>",
		Short: "Decode a JWT without verifying it",
		Long: `Decode the header and claims of a JWT without any signature check and
report expiry, scopes and, when a JWKS URL is given, whether the signing key
referenced by the token is published there. The output is diagnostic only;
nothing printed here implies the token would pass validation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decoded, err := auth.DecodeUnverified(args[0])
			if err != nil {
				return err
			}

			header, err := json.MarshalIndent(decoded.Header, "", "  ")
			if err != nil {
				return err
			}
			claims, err := json.MarshalIndent(decoded.Claims, "", "  ")
			if err != nil {
				return err
			}

			fmt.Printf("Header:\n%s\n\nClaims:\n%s\n\n", header, claims)

			if exp, ok := decoded.Claims["exp"].(float64); ok {
				expiry := time.Unix(int64(exp), 0)
				if time.Now().After(expiry) {
					fmt.Printf("Token EXPIRED at %s\n", expiry.Format(time.RFC3339))
				} else {
					fmt.Printf("Token valid until %s (%s from now)\n",
						expiry.Format(time.RFC3339), time.Until(expiry).Round(time.Second))
				}
			} else {
				fmt.Println("Token carries no exp claim")
			}

			if scope, ok := decoded.Claims["scope"].(string); ok && scope != "" {
				fmt.Printf("Scopes: %s\n", strings.Join(auth.ParseScopes(scope), ", "))
			} else {
				fmt.Println("Token carries no scopes")
			}

			if jwksURL == "" {
				return nil
			}

			keySet, err := jwk.Fetch(cmd.Context(), jwksURL)
			if err != nil {
				return fmt.Errorf("failed to fetch JWKS: %w", err)
			}

			kid := decoded.KeyID()
			if kid == "" {
				fmt.Println("Token header carries no kid; cannot match it against the JWKS")
				return nil
			}
			if _, found := keySet.LookupKeyID(kid); found {
				fmt.Printf("Signing key %s is published at %s\n", kid, jwksURL)
			} else {
				fmt.Printf("Signing key %s is NOT published at %s\n", kid, jwksURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jwksURL, "jwks-url", "", "JWKS URL to check the token's signing key against")

	return cmd
}
