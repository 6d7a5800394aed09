package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"imagebot/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { configPath = "" })
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "imagebot "+version+"\n", out)
}

func TestConfigPath_Flag(t *testing.T) {
	out, err := execute(t, "config", "path", "--config", "/tmp/custom.yaml")
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.yaml\n", out)
}

func TestInit_WritesDefaultsOnce(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := execute(t, "init", "--config", path)
	req.NoError(err)
	data, err := os.ReadFile(path)
	req.NoError(err)
	req.Contains(string(data), "${API_TOKEN}")
	req.Contains(string(data), "画像送ってみて")

	_, err = execute(t, "init", "--config", path)
	req.Error(err)

	_, err = execute(t, "init", "--config", path, "--force")
	req.NoError(err)
}

func TestConfigShow_MasksToken(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_TOKEN", "secret-token-123456")

	out, err := execute(t, "config", "show", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NotContains(t, out, "secret-token-123456")
	require.Contains(t, out, "secr****3456")
}

func TestNewWebhook_Routes(t *testing.T) {
	req := require.New(t)
	cfg := config.Defaults()
	cfg.Platform.APIToken = "token"

	routes := newWebhook(cfg, logger).Routes()

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	req.Equal(http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	routes.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	req.Equal(http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	routes.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`)))
	req.Equal(http.StatusBadRequest, rr.Code)
}

func TestNewWebhook_MetricsDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Platform.APIToken = "token"
	cfg.Metrics.Enabled = false

	rr := httptest.NewRecorder()
	newWebhook(cfg, logger).Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

// doctorEnv points every external dependency at local doubles.
func doctorEnv(t *testing.T, meStatus int) {
	t.Helper()
	t.Chdir(t.TempDir())

	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	}))
	t.Cleanup(images.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" || r.Header.Get("X-ChatWorkToken") != "doctor-token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(meStatus)
		_, _ = w.Write([]byte(`{"account_id":10617115,"name":"imagebot"}`))
	}))
	t.Cleanup(api.Close)

	t.Setenv("API_TOKEN", "doctor-token")
	t.Setenv("IMAGE_URL", images.URL)
	t.Setenv("PLATFORM_BASE_URL", api.URL)
	t.Setenv("TEMP_DIR", t.TempDir())
	t.Setenv("HOST", "127.0.0.1")
}

func TestDoctor_AllChecksPass(t *testing.T) {
	req := require.New(t)
	doctorEnv(t, http.StatusOK)
	tempDir := os.Getenv("TEMP_DIR")

	var out bytes.Buffer
	err := runDoctor(context.Background(), &out, filepath.Join(t.TempDir(), "absent.yaml"))
	req.NoError(err, out.String())
	req.Contains(out.String(), "[PASS] Image service")
	req.Contains(out.String(), "image/jpeg")
	req.Contains(out.String(), "authenticated as imagebot (10617115)")
	req.Contains(out.String(), "[WARN] Config file")

	entries, err := os.ReadDir(tempDir)
	req.NoError(err)
	req.Empty(entries)
}

func TestDoctor_RejectedToken(t *testing.T) {
	doctorEnv(t, http.StatusUnauthorized)

	var out bytes.Buffer
	err := runDoctor(context.Background(), &out, filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, out.String(), "[FAIL] Platform token")
}

func TestDoctor_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("API_TOKEN", "")
	t.Setenv("CHATWORK_API_TOKEN", "")

	var out bytes.Buffer
	err := runDoctor(context.Background(), &out, filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, out.String(), "[FAIL] Config validation")
	require.NotContains(t, out.String(), "Image service")
}

func TestRenderServiceFiles(t *testing.T) {
	unit := renderSystemd("/usr/local/bin/imagebot", "/etc/imagebot.yaml")
	require.Contains(t, unit, "ExecStart=/usr/local/bin/imagebot serve --config /etc/imagebot.yaml")

	require.Contains(t, unit, "WorkingDirectory=-%h/.imagebot")

	plist := renderLaunchd("/usr/local/bin/imagebot", "/etc/imagebot.yaml", "/home/bot/.imagebot")
	require.Contains(t, plist, "<string>serve</string>")
	require.Contains(t, plist, "<string>/etc/imagebot.yaml</string>")
	require.Contains(t, plist, "<key>WorkingDirectory</key>\n    <string>/home/bot/.imagebot</string>")
	require.Contains(t, plist, "<string>/home/bot/.imagebot/logs/imagebot.log</string>")
	require.Contains(t, plist, launchdLabel)
	require.NotContains(t, plist, "{{")
}

func TestInstallSystemd_WritesUnit(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, installSystemd("/bin/imagebot", "/cfg.yaml"))
	data, err := os.ReadFile(filepath.Join(home, ".config", "systemd", "user", systemdUnit))
	require.NoError(t, err)
	require.Contains(t, string(data), "/bin/imagebot serve")

	require.NoError(t, uninstallSystemd())
	require.Error(t, uninstallSystemd())
}
