package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"imagebot/internal/domain"
	"imagebot/internal/metrics"
	"imagebot/internal/pipeline"
)

const (
	signatureHeader = "X-ChatWorkWebhookSignature"
	signatureQuery  = "chatwork_webhook_signature"
)

// EventHandler runs the bot's reaction to one inbound event.
type EventHandler interface {
	Handle(ctx context.Context, ev domain.InboundEvent) (pipeline.Result, error)
}

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	Addr         string
	Path         string // webhook URL path (default: /webhook)
	MetricsPath  string // empty disables the metrics endpoint
	Secret       string // platform webhook token; enables signature checks
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Handler      EventHandler
	Logger       *slog.Logger
}

// Webhook receives chat platform events over HTTP and hands them to the
// event handler.
type Webhook struct {
	addr         string
	path         string
	metricsPath  string
	secret       string
	maxBodyBytes int64
	readTimeout  time.Duration
	writeTimeout time.Duration
	handler      EventHandler
	logger       *slog.Logger
	server       *http.Server
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":3000"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Webhook{
		addr:         cfg.Addr,
		path:         cfg.Path,
		metricsPath:  cfg.MetricsPath,
		secret:       cfg.Secret,
		maxBodyBytes: cfg.MaxBodyBytes,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		handler:      cfg.Handler,
		logger:       cfg.Logger,
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Routes builds the HTTP handler: the webhook, a health check and,
// when configured, the process-wide metrics endpoint.
func (w *Webhook) Routes() http.Handler {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(gin.Recovery(), requestLogger(w.logger))

	engine.POST(w.path, w.handleWebhook)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if w.metricsPath != "" {
		engine.GET(w.metricsPath, gin.WrapF(metrics.Collector.Handler()))
	}
	return engine
}

// Start serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (w *Webhook) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	w.server = &http.Server{
		Addr:              w.addr,
		Handler:           w.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       w.readTimeout,
		WriteTimeout:      w.writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	w.logger.Info("webhook server starting", "addr", w.addr, "path", w.path)

	select {
	case <-ctx.Done():
		w.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (w *Webhook) handleWebhook(c *gin.Context) {
	metrics.WebhooksReceived.Inc()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, w.maxBodyBytes))
	if err != nil {
		w.reject(c, http.StatusBadRequest, "Bad Request: Invalid payload", "read body", err)
		return
	}

	if w.secret != "" {
		sig := c.GetHeader(signatureHeader)
		if sig == "" {
			sig = c.Query(signatureQuery)
		}
		if sig == "" {
			w.reject(c, http.StatusUnauthorized, "Missing signature", "signature missing", nil)
			return
		}
		if !verifySignature(body, w.secret, sig) {
			w.reject(c, http.StatusForbidden, "Invalid signature", "signature mismatch", nil)
			return
		}
	}

	ev, err := domain.ParseWebhook(body)
	if err != nil {
		w.reject(c, http.StatusBadRequest, "Bad Request: Invalid payload", "invalid webhook payload", err)
		return
	}

	// The pipeline outlives a caller that hangs up; outbound calls carry
	// their own timeouts.
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := w.handler.Handle(ctx, ev)
	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		w.reject(c, http.StatusBadRequest, "Bad Request: Invalid payload", "invalid trigger event", err)
	case err != nil:
		// The cause is logged by the pipeline; the caller only learns that it failed.
		c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	default:
		c.Set("outcome", string(res.State))
		c.String(http.StatusOK, http.StatusText(http.StatusOK))
	}
}

func (w *Webhook) reject(c *gin.Context, status int, msg, reason string, err error) {
	if status == http.StatusBadRequest {
		metrics.InvalidPayloads.Inc()
	}
	w.logger.Warn("webhook rejected", "status", status, "reason", reason, "err", err)
	c.String(status, msg)
}

// verifySignature checks a Chatwork-style signature: base64 of the
// HMAC-SHA256 of the raw body keyed with the base64-decoded token.
func verifySignature(body []byte, secret, signature string) bool {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
