package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scopegate/scopegate/pkg/api"
	"github.com/scopegate/scopegate/pkg/config"
	"github.com/scopegate/scopegate/pkg/logger"
)

var (
	configPath string
	host       string
	port       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long:  `Starts the gateway and listens for HTTP requests.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Ensure the server is shut down gracefully on Ctrl+C.
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logger.Initialize()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = host
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}

		return api.Serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to the config file")
	serveCmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind the server to")
	serveCmd.Flags().IntVar(&port, "port", 8000, "Port to bind the server to")
}
