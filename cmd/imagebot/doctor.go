package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"imagebot/internal/config"
	"imagebot/internal/imagesource"
	"imagebot/internal/platform"
	"imagebot/internal/transport"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your imagebot installation",
		Long: `Verifies that imagebot's configuration, image service, platform
credentials and listen port are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return runDoctor(ctx, cmd.OutOrStdout(), resolveConfigPath())
		},
	}
}

type doctor struct {
	out                    io.Writer
	passed, failed, warned int
}

func runDoctor(ctx context.Context, out io.Writer, cfgPath string) error {
	d := &doctor{out: out}
	fmt.Fprintf(out, "imagebot doctor v%s\n", version)
	fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	// 1. Config file
	if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
		d.warn("Config file", fmt.Sprintf("not found at %s (defaults and environment only)", cfgPath))
	} else {
		d.pass("Config file", cfgPath)
	}

	// 2. Effective config
	cfg, err := config.Resolve(cfgPath)
	if err != nil {
		d.fail("Config validation", err.Error())
		return d.summary()
	}
	d.pass("Config validation", "valid")

	if cfg.Platform.WebhookToken == "" {
		d.warn("Webhook signature", "platform.webhookToken not set, requests are not verified")
	} else {
		d.pass("Webhook signature", "enabled")
	}

	// 3. Temp directory writable
	if err := checkTempDir(cfg.Image.TempDir); err != nil {
		d.fail("Temp directory", err.Error())
	} else {
		d.pass("Temp directory", cfg.Image.TempDir)
	}

	// 4. Image service returns an image
	fetcher := imagesource.New(imagesource.Config{
		URL:      cfg.Image.URL,
		TempDir:  cfg.Image.TempDir,
		MaxBytes: cfg.Image.MaxBytes,
		Client:   transport.NewHTTPClient(cfg.Image.Timeout),
		Logger:   logger,
	})
	if file, err := fetcher.Fetch(ctx); err != nil {
		d.fail("Image service", err.Error())
	} else {
		_ = os.Remove(file.Path)
		d.pass("Image service", fmt.Sprintf("%s (%s, %d bytes)", cfg.Image.URL, file.MimeType, file.Size))
	}

	// 5. Platform credentials
	client := platform.NewClient(platform.Config{
		BaseURL:     cfg.Platform.BaseURL,
		Token:       cfg.Platform.APIToken,
		TokenHeader: cfg.Platform.TokenHeader,
		HTTPClient:  transport.NewHTTPClient(cfg.Platform.Timeout),
		Logger:      logger,
	})
	if me, err := client.Me(ctx); err != nil {
		d.fail("Platform token", err.Error())
	} else {
		d.pass("Platform token", fmt.Sprintf("authenticated as %s (%d)", me.Name, me.AccountID))
	}

	// 6. Listen port
	if err := checkPort(cfg.Server.Addr()); err != nil {
		d.warn("Listen port", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
	} else {
		d.pass("Listen port", cfg.Server.Addr()+" available")
	}

	return d.summary()
}

func (d *doctor) summary() error {
	fmt.Fprintf(d.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(d.out, "Results: %d passed, %d warnings, %d failed\n", d.passed, d.warned, d.failed)
	if d.failed > 0 {
		fmt.Fprintf(d.out, "\nPlease fix the failed checks before running imagebot.\n")
		return fmt.Errorf("%d check(s) failed", d.failed)
	}
	if d.warned > 0 {
		fmt.Fprintf(d.out, "\nimagebot should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(d.out, "\nAll checks passed! imagebot is ready to run.\n")
	}
	return nil
}

func checkTempDir(dir string) error {
	f, err := os.CreateTemp(dir, ".imagebot-doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func (d *doctor) pass(check, detail string) {
	d.passed++
	fmt.Fprintf(d.out, "  [PASS] %-20s %s\n", check, detail)
}

func (d *doctor) fail(check, detail string) {
	d.failed++
	fmt.Fprintf(d.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (d *doctor) warn(check, detail string) {
	d.warned++
	fmt.Fprintf(d.out, "  [WARN] %-20s %s\n", check, detail)
}
