package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/sleepstars/nimbridge/internal/clients"
	"github.com/sleepstars/nimbridge/internal/config"
	"github.com/sleepstars/nimbridge/internal/logger"
	"github.com/sleepstars/nimbridge/internal/metrics"
	"github.com/sleepstars/nimbridge/internal/orchestrator"
	"github.com/sleepstars/nimbridge/internal/server"
)

var serveFlags struct {
	port     int
	logLevel string
	dryRun   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the proxy server.

Examples:
  # Start with defaults, reading NIM_API_KEY from the environment or .env
  nimbridge serve

  # Use a config file and override the port
  nimbridge serve --config /etc/nimbridge.yaml --port 8080

  # Validate configuration without starting
  nimbridge serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", 0, "override listen port")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting server")
}

// loadConfig reads configuration and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if serveFlags.port != 0 {
		cfg.Server.Port = serveFlags.port
	}
	if serveFlags.logLevel != "" {
		cfg.Log.Level = serveFlags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logger.Configure(level, "main", cfg.Log.Format, os.Stdout)

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration valid")
		return nil
	}

	if !cfg.HasAPIKey() {
		log.Warn("NIM_API_KEY is not set; chat completion requests will fail with server_misconfigured")
	}

	gin.SetMode(gin.ReleaseMode)

	collector := metrics.NewCollector(nil)
	client := clients.NewNIMClient(clients.UpstreamClientConfig{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
	})
	proxy := orchestrator.NewProxy(client, orchestrator.Options{
		ShowReasoning:    cfg.Reasoning.Show,
		ThinkingMode:     cfg.Reasoning.ThinkingMode,
		APIKeyConfigured: cfg.HasAPIKey(),
	}, collector)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("nimbridge %s starting", Version)
	return server.New(cfg, proxy, collector).Run(ctx)
}
