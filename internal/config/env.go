package config

import (
	"fmt"
	"strconv"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// envOverrides lists the environment variables that take precedence over the
// config file. Unset variables leave the file value alone.
type envOverrides struct {
	APIToken         string `env:"API_TOKEN"`
	ChatworkAPIToken string `env:"CHATWORK_API_TOKEN"`
	Host             string `env:"HOST"`
	Port             int    `env:"PORT"`
	PlatformBaseURL  string `env:"PLATFORM_BASE_URL"`
	WebhookToken     string `env:"WEBHOOK_TOKEN"`
	ImageURL         string `env:"IMAGE_URL"`
	TempDir          string `env:"TEMP_DIR"`
	Trigger          string `env:"TRIGGER_PHRASE"`
	IgnoredAccounts  string `env:"IGNORED_ACCOUNT_IDS"`
	LogLevel         string `env:"LOG_LEVEL"`
}

// loadDotEnv loads .env if present; a missing file is not an error.
func loadDotEnv() {
	_ = godotenv.Load()
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return err
	}

	token := lo.CoalesceOrEmpty(o.APIToken, o.ChatworkAPIToken)
	if token != "" {
		cfg.Platform.APIToken = token
	}
	if o.Host != "" {
		cfg.Server.Host = o.Host
	}
	if o.Port != 0 {
		cfg.Server.Port = o.Port
	}
	if o.PlatformBaseURL != "" {
		cfg.Platform.BaseURL = strings.TrimRight(o.PlatformBaseURL, "/")
	}
	if o.WebhookToken != "" {
		cfg.Platform.WebhookToken = o.WebhookToken
	}
	if o.ImageURL != "" {
		cfg.Image.URL = o.ImageURL
	}
	if o.TempDir != "" {
		cfg.Image.TempDir = ExpandPath(o.TempDir)
	}
	if o.Trigger != "" {
		cfg.Bot.Trigger = o.Trigger
	}
	if o.IgnoredAccounts != "" {
		ids, err := ParseAccountIDs(o.IgnoredAccounts)
		if err != nil {
			return fmt.Errorf("IGNORED_ACCOUNT_IDS: %w", err)
		}
		cfg.Bot.IgnoredAccounts = ids
	}
	if o.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(o.LogLevel)
	}
	return nil
}

// ParseAccountIDs parses a comma separated list of account ids.
func ParseAccountIDs(raw string) ([]int64, error) {
	parts := lo.Compact(lo.Map(strings.Split(raw, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid account id %q", p)
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids), nil
}
