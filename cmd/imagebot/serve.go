package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"imagebot/internal/channel"
	"imagebot/internal/config"
	"imagebot/internal/imagesource"
	"imagebot/internal/pipeline"
	"imagebot/internal/platform"
	"imagebot/internal/transport"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(resolveConfigPath())
	if err != nil {
		return err
	}
	logger = logs.GetLoggerFromString(strings.ToUpper(cfg.Log.Level))
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	webhook := newWebhook(cfg, logger)
	logger.Info("Server is running", "port", cfg.Server.Port, "path", cfg.Server.WebhookPath, "version", version)
	return webhook.Start(ctx, cfg.Server.ShutdownTimeout)
}

// newWebhook wires the image pipeline behind the webhook channel.
func newWebhook(cfg *config.Config, logger *slog.Logger) *channel.Webhook {
	client := platform.NewClient(platform.Config{
		BaseURL:     cfg.Platform.BaseURL,
		Token:       cfg.Platform.APIToken,
		TokenHeader: cfg.Platform.TokenHeader,
		Caption:     cfg.Bot.Caption,
		HTTPClient:  transport.NewHTTPClient(cfg.Platform.Timeout),
		Logger:      logger.With("component", "platform"),
	})

	images := imagesource.New(imagesource.Config{
		URL:      cfg.Image.URL,
		TempDir:  cfg.Image.TempDir,
		MaxBytes: cfg.Image.MaxBytes,
		Client:   transport.NewHTTPClient(cfg.Image.Timeout),
		Logger:   logger.With("component", "imagesource"),
	})

	p := pipeline.New(pipeline.Config{
		Trigger:         cfg.Bot.Trigger,
		IgnoredAccounts: cfg.Bot.IgnoredAccounts,
		Images:          images,
		Uploader:        client,
		Replier:         client,
		Logger:          logger.With("component", "pipeline"),
	})

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	return channel.NewWebhook(channel.WebhookConfig{
		Addr:         cfg.Server.Addr(),
		Path:         cfg.Server.WebhookPath,
		MetricsPath:  metricsPath,
		Secret:       cfg.Platform.WebhookToken,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Handler:      p,
		Logger:       logger.With("component", "webhook"),
	})
}
