// Package app provides the entry point for the scopegate command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scopegate/scopegate/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "scopegate",
	DisableAutoGenTag: true,
	Short:             "Scopegate is an authenticating gateway for OAuth-protected APIs",
	Long: `Scopegate sits in front of HTTP APIs and enforces bearer token authentication
against an external identity provider: it validates JWT signatures, issuers,
audiences and scopes, and proxies the OAuth 2.0 authorization code flow so
clients never talk to the provider directly.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the scopegate CLI.
func NewRootCmd() *cobra.Command {
	// Add persistent flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newInspectTokenCmd())

	return rootCmd
}
