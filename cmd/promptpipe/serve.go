package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpipe/pkg/logger"
	"github.com/jingkaihe/promptpipe/pkg/presenter"
	"github.com/jingkaihe/promptpipe/pkg/server"
)

// ServeConfig holds configuration for the serve command
type ServeConfig struct {
	Host string
	Port int
}

// NewServeConfig creates a new ServeConfig with default values
func NewServeConfig() *ServeConfig {
	return &ServeConfig{
		Host: "localhost",
		Port: 8080,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for templates, composition, and reviews",
	Long: `Start a local HTTP server exposing the template library and review
checklists as a JSON API. Editors and CI jobs can compose prompts and run
reviews over HTTP instead of shelling out to the CLI.

The server will be available at http://localhost:8080 by default.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getServeConfigFromFlags(cmd)

		serverConfig := &server.Config{
			Host: config.Host,
			Port: config.Port,
		}
		if err := serverConfig.Validate(); err != nil {
			presenter.Error(err, "invalid server configuration")
			os.Exit(1)
		}

		templateStore, err := newTemplateStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create template store")
			os.Exit(1)
		}
		checklistStore, err := newChecklistStore(cmd)
		if err != nil {
			presenter.Error(err, "Failed to create checklist store")
			os.Exit(1)
		}

		srv, err := server.NewServer(serverConfig, templateStore, checklistStore)
		if err != nil {
			presenter.Error(err, "failed to create server")
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logger.G(ctx).WithFields(map[string]interface{}{
			"host": config.Host,
			"port": config.Port,
		}).Info("Starting API server")

		presenter.Success(fmt.Sprintf("API server starting on http://%s:%d", config.Host, config.Port))
		presenter.Info("Press Ctrl+C to stop the server")

		if err := srv.Start(ctx); err != nil {
			logger.G(ctx).WithError(err).Error("server error")
			presenter.Error(err, "server failed")
			os.Exit(1)
		}

		presenter.Info("Server stopped")
	},
}

func init() {
	defaults := NewServeConfig()
	serveCmd.Flags().String("host", defaults.Host, "Host to bind the server to")
	serveCmd.Flags().Int("port", defaults.Port, "Port to bind the server to")
}

// getServeConfigFromFlags extracts serve configuration from command flags
func getServeConfigFromFlags(cmd *cobra.Command) *ServeConfig {
	config := NewServeConfig()

	if host, err := cmd.Flags().GetString("host"); err == nil {
		config.Host = host
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil {
		config.Port = port
	}

	return config
}
