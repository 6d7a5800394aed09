// Package imagesource downloads random images into transient files.
package imagesource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"imagebot/internal/domain"
	"imagebot/internal/metrics"
)

// Config configures a Fetcher.
type Config struct {
	URL      string // image endpoint, answers GET with image bytes
	TempDir  string // where transient files are written
	MaxBytes int64
	Client   *http.Client
	Logger   *slog.Logger
}

// Fetcher retrieves one image per call from a fixed endpoint.
type Fetcher struct {
	url      string
	tempDir  string
	maxBytes int64
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config) *Fetcher {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		url:      cfg.URL,
		tempDir:  cfg.TempDir,
		maxBytes: cfg.MaxBytes,
		client:   cfg.Client,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Fetch downloads an image and writes it to a file unique to this call.
// On error no file is left behind.
func (f *Fetcher) Fetch(ctx context.Context) (domain.TransientFile, error) {
	start := time.Now()
	defer func() { metrics.DownloadLatency.Observe(time.Since(start).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return domain.TransientFile{}, domain.DownloadError("build request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.TransientFile{}, domain.DownloadError("GET %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.TransientFile{}, domain.DownloadError("GET %s: HTTP %d: %s",
			f.url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return domain.TransientFile{}, domain.DownloadError("read body: %w", err)
	}
	if len(data) == 0 {
		return domain.TransientFile{}, domain.DownloadError("empty body")
	}
	if int64(len(data)) > f.maxBytes {
		return domain.TransientFile{}, domain.DownloadError("image exceeds %d bytes", f.maxBytes)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return domain.TransientFile{}, domain.DownloadError("unexpected content type %s", mtype.String())
	}

	path := filepath.Join(f.tempDir, f.fileName(mtype.Extension()))
	if err := writeExclusive(path, data); err != nil {
		return domain.TransientFile{}, domain.DownloadError("write %s: %w", path, err)
	}

	f.logger.Info("image downloaded", "path", path, "mime", mtype.String(), "size", len(data))
	return domain.TransientFile{
		Path:     path,
		MimeType: mtype.String(),
		Size:     int64(len(data)),
	}, nil
}

// fileName combines a nanosecond timestamp with a random token so that
// concurrent or back-to-back calls never share a path.
func (f *Fetcher) fileName(ext string) string {
	if ext == "" {
		ext = ".img"
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("image_%d_%s%s", f.now().UnixNano(), token, ext)
}

func writeExclusive(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
