package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for imagebot. It is built once at start
// and only read afterwards.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Platform PlatformConfig `yaml:"platform"`
	Image    ImageConfig    `yaml:"image"`
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	WebhookPath     string        `yaml:"webhookPath"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PlatformConfig describes the chat platform REST API.
type PlatformConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	APIToken     string        `yaml:"apiToken"`
	TokenHeader  string        `yaml:"tokenHeader"`
	WebhookToken string        `yaml:"webhookToken,omitempty"` // enables signature checks when set
	Timeout      time.Duration `yaml:"timeout"`
}

type ImageConfig struct {
	URL      string        `yaml:"url"`
	TempDir  string        `yaml:"tempDir"`
	MaxBytes int64         `yaml:"maxBytes"`
	Timeout  time.Duration `yaml:"timeout"`
}

type BotConfig struct {
	Trigger         string  `yaml:"trigger"`
	Caption         string  `yaml:"caption"`
	IgnoredAccounts []int64 `yaml:"ignoredAccounts"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Addr returns the listen address of the webhook server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfigDir returns the default config directory (~/.imagebot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".imagebot"
	}
	return filepath.Join(home, ".imagebot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads a YAML config file on top of Defaults and validates the result.
// Environment variables are not consulted beyond ${VAR} expansion; see Resolve.
func Load(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	cfg.Image.TempDir = ExpandPath(cfg.Image.TempDir)
	return cfg, nil
}

// Resolve builds the runtime configuration: .env file, then the config file
// at path (defaults when it does not exist), then environment overrides.
func Resolve(path string) (*Config, error) {
	loadDotEnv()

	cfg, err := readFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Defaults()
	} else if err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has usable values and reports every
// violation at once.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		errs = append(errs, "server.webhookPath must start with /")
	}
	if cfg.Server.MaxBodyBytes < 1 {
		errs = append(errs, "server.maxBodyBytes must be >= 1")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdownTimeout must be positive")
	}

	if cfg.Platform.APIToken == "" {
		errs = append(errs, "platform.apiToken is required (set API_TOKEN)")
	}
	if cfg.Platform.TokenHeader == "" {
		errs = append(errs, "platform.tokenHeader is required")
	}
	if !isHTTPURL(cfg.Platform.BaseURL) {
		errs = append(errs, "platform.baseURL must be an http(s) URL")
	}
	if cfg.Platform.Timeout <= 0 {
		errs = append(errs, "platform.timeout must be positive")
	}

	if !isHTTPURL(cfg.Image.URL) {
		errs = append(errs, "image.url must be an http(s) URL")
	}
	if cfg.Image.MaxBytes < 1 {
		errs = append(errs, "image.maxBytes must be >= 1")
	}
	if cfg.Image.Timeout <= 0 {
		errs = append(errs, "image.timeout must be positive")
	}

	if cfg.Bot.Trigger == "" {
		errs = append(errs, "bot.trigger must not be empty")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Path == cfg.Server.WebhookPath {
		errs = append(errs, "metrics.path must differ from server.webhookPath")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
