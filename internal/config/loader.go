package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".playcrawl"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the YAML configuration file layout. Every field is optional;
// zero values leave the corresponding Config default untouched.
type File struct {
	// Profile overrides the device identity presented to the service.
	Profile ProfileConfig `yaml:"profile"`

	// Endpoints overrides the service URLs (mainly for testing against
	// mock servers, or if the service moves).
	Endpoints EndpointConfig `yaml:"endpoints"`

	// Crawl overrides traversal behavior.
	Crawl CrawlConfig `yaml:"crawl"`
}

// ProfileConfig is the device identity section of the config file.
type ProfileConfig struct {
	DeviceID          string `yaml:"device_id"`
	ClientID          string `yaml:"client_id"`
	LoginUserAgent    string `yaml:"login_user_agent"`
	MarketUserAgent   string `yaml:"market_user_agent"`
	DownloadUserAgent string `yaml:"download_user_agent"`
}

// EndpointConfig is the service endpoint section of the config file.
type EndpointConfig struct {
	AuthURL      string `yaml:"auth_url"`
	CatalogURL   string `yaml:"catalog_url"`
	StorePageURL string `yaml:"store_page_url"`
}

// CrawlConfig is the traversal section of the config file.
// Durations are Go duration strings ("1s", "500ms").
type CrawlConfig struct {
	Iterations   int    `yaml:"iterations"`
	Reviews      int    `yaml:"reviews"`
	Delay        string `yaml:"delay"`
	RetryBackoff string `yaml:"retry_backoff"`
	DownloadDir  string `yaml:"download_dir"`
}

// LoadConfigFile loads overrides from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound; callers decide
// whether that matters based on whether the path was explicit.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file:
// an explicit path wins, then .playcrawl in the current directory, then
// .playcrawl in the home directory. Returns "" when nothing is found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}

// ApplyTo copies the file's non-zero values onto cfg.
// Flag parsing happens after this, so flags still win.
func (f *File) ApplyTo(cfg *Config) error {
	if f.Profile.DeviceID != "" {
		cfg.DeviceID = f.Profile.DeviceID
	}
	if f.Profile.ClientID != "" {
		cfg.ClientID = f.Profile.ClientID
	}
	if f.Profile.LoginUserAgent != "" {
		cfg.LoginUserAgent = f.Profile.LoginUserAgent
	}
	if f.Profile.MarketUserAgent != "" {
		cfg.MarketUserAgent = f.Profile.MarketUserAgent
	}
	if f.Profile.DownloadUserAgent != "" {
		cfg.DownloadUserAgent = f.Profile.DownloadUserAgent
	}

	if f.Endpoints.AuthURL != "" {
		cfg.AuthURL = f.Endpoints.AuthURL
	}
	if f.Endpoints.CatalogURL != "" {
		cfg.CatalogURL = f.Endpoints.CatalogURL
	}
	if f.Endpoints.StorePageURL != "" {
		cfg.StorePageURL = f.Endpoints.StorePageURL
	}

	if f.Crawl.Iterations > 0 {
		cfg.MaxIterations = f.Crawl.Iterations
	}
	if f.Crawl.Reviews > 0 {
		cfg.ReviewCount = f.Crawl.Reviews
	}
	if f.Crawl.DownloadDir != "" {
		cfg.DownloadDir = f.Crawl.DownloadDir
	}

	if f.Crawl.Delay != "" {
		d, err := time.ParseDuration(f.Crawl.Delay)
		if err != nil {
			return fmt.Errorf("invalid crawl.delay: %w", err)
		}
		cfg.VisitDelay = d
	}
	if f.Crawl.RetryBackoff != "" {
		d, err := time.ParseDuration(f.Crawl.RetryBackoff)
		if err != nil {
			return fmt.Errorf("invalid crawl.retry_backoff: %w", err)
		}
		cfg.RetryBackoff = d
	}

	return nil
}
