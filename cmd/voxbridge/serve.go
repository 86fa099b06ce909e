package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/voxbridge/voxbridge/internal/ai"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/email"
	"github.com/voxbridge/voxbridge/internal/observability"
	"github.com/voxbridge/voxbridge/internal/server"
	"github.com/voxbridge/voxbridge/internal/sessions"
	"github.com/voxbridge/voxbridge/internal/store"
	"github.com/voxbridge/voxbridge/internal/voice"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long: `Start the voxbridge webhook server.

The server will:
1. Load configuration from the specified file
2. Open the SQLite call and email store
3. Connect the configured AI provider (OpenRouter or Anthropic)
4. Serve Twilio voice webhooks and email ingestion over HTTP
5. Sweep idle call sessions in the background

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  voxbridge serve

  # Start with custom config
  voxbridge serve --config /etc/voxbridge/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "voxbridge.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	aiClient, err := buildAIClient(cfg)
	if err != nil {
		return err
	}

	sessionStore := sessions.NewStore()
	controller, err := voice.NewController(voice.ControllerConfig{
		Store:               sessionStore,
		AI:                  aiClient,
		TwiML:               voice.NewTwiML(cfg.Twilio.Voice, cfg.Twilio.Language),
		Recorder:            db,
		Logger:              logger,
		Metrics:             metrics,
		WebhookBaseURL:      cfg.Twilio.WebhookBaseURL,
		ConfidenceThreshold: cfg.Session.ConfidenceThreshold,
		AIProvider:          cfg.AI.Provider,
		AIModel:             cfg.AI.Model,
	})
	if err != nil {
		return err
	}

	ingestor, err := email.NewIngestor(email.IngestorConfig{
		DB:              db,
		Logger:          logger,
		Metrics:         metrics,
		AutoReply:       cfg.Email.AutoReply,
		ReplySubjectTag: cfg.Email.ReplySubjectTag,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		Controller:       controller,
		Ingestor:         ingestor,
		DB:               db,
		Logger:           logger,
		Metrics:          metrics,
		Registry:         registry,
		TwilioAuthToken:  cfg.Twilio.AuthToken,
		VerifySignatures: cfg.Twilio.VerifySignatures,
		WebhookBaseURL:   cfg.Twilio.WebhookBaseURL,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}

	sweeper := sessions.NewSweeper(sessionStore,
		cfg.Session.IdleTimeout(), cfg.Session.SweepInterval())
	sweeper.OnSwept(func(count int) {
		metrics.SessionsSwept.Add(float64(count))
		metrics.ActiveSessions.Set(float64(sessionStore.Len()))
		logger.Info(ctx, "swept idle sessions", "count", count)
	})
	go sweeper.Run(ctx)

	logger.Info(ctx, "voxbridge started",
		"version", version,
		"ai_provider", cfg.AI.Provider,
		"webhook_base_url", cfg.Twilio.WebhookBaseURL)

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildAIClient(cfg *config.Config) (ai.Client, error) {
	switch cfg.AI.Provider {
	case "anthropic":
		return ai.NewAnthropicClient(ai.AnthropicConfig{
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			BaseURL: cfg.AI.BaseURL,
		})
	default:
		return ai.NewOpenRouterClient(ai.OpenRouterConfig{
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			BaseURL: cfg.AI.BaseURL,
			AppName: cfg.AI.AppName,
			SiteURL: cfg.AI.SiteURL,
		})
	}
}
