package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validConfig returns a Config that passes Validate.
func validConfig() *Config {
	cfg := NewConfig()
	cfg.User = "user@example.com"
	cfg.Password = "secret"
	cfg.DeviceID = "3f2a1b9c8d7e6f50"
	cfg.Seed = "com.example.app"
	cfg.MaxIterations = 10
	return cfg
}

// TestNewConfig verifies default values. The defaults double as living
// documentation; changing one should be a deliberate act that breaks a test.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default review count is 50", func(t *testing.T) {
		t.Parallel()
		if cfg.ReviewCount != 50 {
			t.Errorf("expected ReviewCount 50, got %d", cfg.ReviewCount)
		}
	})

	t.Run("default visit delay is 1s", func(t *testing.T) {
		t.Parallel()
		if cfg.VisitDelay != time.Second {
			t.Errorf("expected VisitDelay 1s, got %v", cfg.VisitDelay)
		}
	})

	t.Run("default retry backoff is 10s", func(t *testing.T) {
		t.Parallel()
		if cfg.RetryBackoff != 10*time.Second {
			t.Errorf("expected RetryBackoff 10s, got %v", cfg.RetryBackoff)
		}
	})

	t.Run("default purchase timeout is 60s", func(t *testing.T) {
		t.Parallel()
		if cfg.PurchaseTimeout != 60*time.Second {
			t.Errorf("expected PurchaseTimeout 60s, got %v", cfg.PurchaseTimeout)
		}
	})

	t.Run("download and store enabled by default", func(t *testing.T) {
		t.Parallel()
		if !cfg.DownloadEnabled || !cfg.StoreEnabled {
			t.Error("expected DownloadEnabled and StoreEnabled to default to true")
		}
	})

	t.Run("production endpoints are set", func(t *testing.T) {
		t.Parallel()
		if cfg.AuthURL == "" || cfg.CatalogURL == "" || cfg.StorePageURL == "" {
			t.Error("expected endpoint defaults to be non-empty")
		}
	})
}

// TestConfigValidate verifies that each invalid field maps to its sentinel.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing user", func(c *Config) { c.User = "" }, ErrNoCredentials},
		{"missing password", func(c *Config) { c.Password = "" }, ErrNoCredentials},
		{"missing device id", func(c *Config) { c.DeviceID = "" }, ErrNoDeviceID},
		{"missing seed", func(c *Config) { c.Seed = "" }, ErrNoSeed},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, ErrInvalidIterations},
		{"negative review count", func(c *Config) { c.ReviewCount = -1 }, ErrInvalidReviewCount},
		{"negative delay", func(c *Config) { c.VisitDelay = -time.Second }, ErrInvalidDelay},
		{"zero purchase timeout", func(c *Config) { c.PurchaseTimeout = 0 }, ErrInvalidPurchaseTimeout},
		{"both report formats", func(c *Config) { c.JSONReport = true; c.MarkdownReport = true }, ErrConflictingReportFormats},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestLoadConfigFile verifies YAML parsing and override application.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("overrides apply to config", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		content := `
profile:
  device_id: "abcdef0123456789"
  client_id: "custom-client"
endpoints:
  catalog_url: "http://127.0.0.1:9999/fdfe"
crawl:
  iterations: 25
  reviews: 10
  delay: 250ms
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		cf, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("failed to load config file: %v", err)
		}

		cfg := NewConfig()
		if err := cf.ApplyTo(cfg); err != nil {
			t.Fatalf("failed to apply config file: %v", err)
		}

		if cfg.DeviceID != "abcdef0123456789" {
			t.Errorf("expected device id override, got %q", cfg.DeviceID)
		}
		if cfg.ClientID != "custom-client" {
			t.Errorf("expected client id override, got %q", cfg.ClientID)
		}
		if cfg.CatalogURL != "http://127.0.0.1:9999/fdfe" {
			t.Errorf("expected catalog url override, got %q", cfg.CatalogURL)
		}
		if cfg.MaxIterations != 25 || cfg.ReviewCount != 10 {
			t.Errorf("expected crawl overrides, got iterations=%d reviews=%d", cfg.MaxIterations, cfg.ReviewCount)
		}
		if cfg.VisitDelay != 250*time.Millisecond {
			t.Errorf("expected delay 250ms, got %v", cfg.VisitDelay)
		}
		// Untouched fields keep defaults.
		if cfg.AuthURL != DefaultAuthURL {
			t.Errorf("expected auth url default, got %q", cfg.AuthURL)
		}
	})

	t.Run("bad duration fails", func(t *testing.T) {
		t.Parallel()

		cf := &File{Crawl: CrawlConfig{Delay: "soon"}}
		if err := cf.ApplyTo(NewConfig()); err == nil {
			t.Error("expected error for unparseable duration")
		}
	})
}
