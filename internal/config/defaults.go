package config

import (
	"os"
	"time"
)

const (
	DefaultTrigger = "画像送ってみて"
	DefaultCaption = "画像です！"
)

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            3000,
			WebhookPath:     "/webhook",
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Platform: PlatformConfig{
			BaseURL:     "https://api.chatwork.com/v2",
			TokenHeader: "X-ChatWorkToken",
			Timeout:     10 * time.Second,
		},
		Image: ImageConfig{
			URL:      "https://pic.re/image",
			TempDir:  os.TempDir(),
			MaxBytes: 10 << 20,
			Timeout:  10 * time.Second,
		},
		Bot: BotConfig{
			Trigger:         DefaultTrigger,
			Caption:         DefaultCaption,
			IgnoredAccounts: []int64{10617115},
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
