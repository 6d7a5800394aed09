package config

// Sanitize returns a copy of the config with secrets masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	c.Bot.IgnoredAccounts = append([]int64(nil), cfg.Bot.IgnoredAccounts...)

	if c.Platform.APIToken != "" {
		c.Platform.APIToken = maskString(c.Platform.APIToken)
	}
	if c.Platform.WebhookToken != "" {
		c.Platform.WebhookToken = maskString(c.Platform.WebhookToken)
	}
	return &c
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
