// Package platform talks to the chat platform's REST API (Chatwork v2
// compatible): file uploads, message posts and account lookups.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imagebot/internal/domain"
	"imagebot/internal/metrics"
)

// Config configures a Client.
type Config struct {
	BaseURL     string // e.g. https://api.chatwork.com/v2
	Token       string
	TokenHeader string // default: X-ChatWorkToken
	Caption     string // caption line of image replies
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client is safe for concurrent use; it holds no per-request state.
type Client struct {
	baseURL     string
	token       string
	tokenHeader string
	caption     string
	http        *http.Client
	logger      *slog.Logger
	remove      func(path string) error
}

func NewClient(cfg Config) *Client {
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = "X-ChatWorkToken"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		tokenHeader: cfg.TokenHeader,
		caption:     cfg.Caption,
		http:        cfg.HTTPClient,
		logger:      cfg.Logger,
		remove:      os.Remove,
	}
}

// apiError is a non-2xx platform response.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

type uploadResponse struct {
	FileID *domain.FlexID `json:"file_id"`
}

// UploadFile posts file to the room's file endpoint and returns the id the
// platform assigned. The transient file is removed before returning, on
// every path; a failed removal is logged and does not change the result.
func (c *Client) UploadFile(ctx context.Context, roomID domain.FlexID, file domain.TransientFile) (domain.FileID, error) {
	defer c.discard(file.Path)

	start := time.Now()
	defer func() { metrics.UploadLatency.Observe(time.Since(start).Seconds()) }()

	body, contentType, err := multipartBody(file)
	if err != nil {
		return "", domain.UploadError("build form: %w", err)
	}

	endpoint := c.roomURL(roomID, "files")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", domain.UploadError("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var out uploadResponse
	data, err := c.do(req)
	if err == nil {
		err = decode(data, &out)
	}
	if err != nil {
		return "", domain.UploadError("POST %s: %w", endpoint, err)
	}
	if out.FileID == nil || *out.FileID == "" {
		return "", domain.UploadError("response has no file_id")
	}

	c.logger.Info("file uploaded", "room_id", roomID, "file_id", *out.FileID)
	return *out.FileID, nil
}

// PostMessage posts body to the room and returns the new message id. Any 2xx
// answer counts as delivered; the id is empty when the body does not carry one.
func (c *Client) PostMessage(ctx context.Context, roomID domain.FlexID, body string) (domain.FlexID, error) {
	form := url.Values{"body": {body}}
	endpoint := c.roomURL(roomID, "messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", endpoint, err)
	}
	var out struct {
		MessageID domain.FlexID `json:"message_id"`
	}
	if err := decode(data, &out); err != nil {
		c.logger.Debug("message posted without a readable id", "room_id", roomID, "err", err)
	}
	return out.MessageID, nil
}

// Reply posts the image reply for ev, embedding fileID.
func (c *Client) Reply(ctx context.Context, ev domain.InboundEvent, fileID domain.FileID) error {
	start := time.Now()
	defer func() { metrics.ReplyLatency.Observe(time.Since(start).Seconds()) }()

	msg := ComposeReply(ev, fileID, c.caption)
	id, err := c.PostMessage(ctx, ev.RoomID, msg)
	if err != nil {
		return domain.ReplyError("%w", err)
	}
	c.logger.Info("reply sent", "room_id", ev.RoomID, "message_id", id, "file_id", fileID)
	return nil
}

// Account is the identity the API token belongs to.
type Account struct {
	AccountID  int64  `json:"account_id"`
	Name       string `json:"name"`
	ChatworkID string `json:"chatwork_id,omitempty"`
}

// Me returns the account of the configured token.
func (c *Client) Me(ctx context.Context) (*Account, error) {
	endpoint := c.baseURL + "/me"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var acc Account
	data, err := c.do(req)
	if err == nil {
		err = decode(data, &acc)
	}
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", endpoint, err)
	}
	return &acc, nil
}

func (c *Client) roomURL(roomID domain.FlexID, resource string) string {
	return fmt.Sprintf("%s/rooms/%s/%s", c.baseURL, url.PathEscape(roomID.String()), resource)
}

// do sends req with the token header and returns the body of a 2xx answer.
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set(c.tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// decode unmarshals a JSON response body into out.
func decode(data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) discard(path string) {
	if path == "" {
		return
	}
	if err := c.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Error("failed to remove temp file", "path", path, "err", err)
		return
	}
	c.logger.Debug("temp file removed", "path", path)
}

// multipartBody reads file into a multipart form with a single "file" part.
// The file handle is closed before returning so the caller may remove it.
func multipartBody(file domain.TransientFile) (*bytes.Buffer, string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(file.Path)))
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
