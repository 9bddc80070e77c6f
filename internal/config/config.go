package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. Endpoint and user-agent defaults mirror what
// the production catalog service expects; everything network-facing is still
// overridable so tests can point the session at local mock servers.
const (
	// DefaultAuthURL is the authentication endpoint.
	DefaultAuthURL = "https://android.clients.google.com/auth"

	// DefaultCatalogURL is the base URL of the binary catalog API. All
	// catalog operations (details, reviews, delivery, purchase, related)
	// are paths beneath it.
	DefaultCatalogURL = "https://android.clients.google.com/fdfe"

	// DefaultStorePageURL is the public web details page used for HTML
	// enrichment (category and required-OS lookups).
	DefaultStorePageURL = "https://play.google.com/store/apps/details"

	// DefaultClientID identifies the client software to the catalog API.
	DefaultClientID = "am-android-google"

	// DefaultLoginUserAgent is sent on authentication requests.
	DefaultLoginUserAgent = "GoogleLoginService/1.3 (gts3llte)"

	// DefaultMarketUserAgent is sent on catalog API requests. The service
	// varies responses by declared device capabilities, so this carries a
	// full device profile string.
	DefaultMarketUserAgent = "Android-Finsky/5.7.10 (api=3,versionCode=80371000,sdk=24,device=falcon_umts,hardware=qcom,product=falcon_reteu,platformVersionRelease=4.4.4,model=XT1032,buildId=KXB21.14-L1.40,isWideScreen=0)"

	// DefaultDownloadUserAgent is sent when streaming binaries.
	DefaultDownloadUserAgent = "AndroidDownloadManager/9 (Linux; U; Android 9; XT1032 Build/KXB21.14-L1.40)"

	// DefaultReviewCount is how many reviews to request per entry.
	DefaultReviewCount = 50

	// DefaultMaxIterations bounds the number of entries visited per crawl.
	DefaultMaxIterations = 1

	// DefaultVisitDelay is the politeness delay before each visit.
	DefaultVisitDelay = 1 * time.Second

	// DefaultRetryBackoff is the wait before retrying a failed visit.
	// Most per-entry failures are transient server timeouts; a generous
	// backoff gives the service time to recover.
	DefaultRetryBackoff = 10 * time.Second

	// DefaultPurchaseTimeout is the hard request timeout for the
	// purchase-authorization call. The purchase endpoint is the one
	// operation known to stall indefinitely, so it alone gets a bound.
	DefaultPurchaseTimeout = 60 * time.Second

	// AppName is the application name used for XDG directory paths.
	AppName = "playcrawl"
)

// Config holds all configuration options for playcrawl.
//
// Design decision: one flat struct populated by the CLI and handed down via
// dependency injection, following the same shape as the rest of the options
// here. The field count is manageable; nesting would add ceremony without
// buying clarity.
type Config struct {
	// User is the account username (email) for the login handshake.
	User string

	// Password is the account password. It is only ever forwarded to the
	// credential encryptor and is redacted from all log output.
	Password string

	// DeviceID is the opaque device identifier attached to every
	// authenticated call.
	DeviceID string

	// Seed is the doc id the crawl starts from.
	Seed string

	// MaxIterations bounds how many distinct entries one crawl may visit.
	MaxIterations int

	// ReviewCount is how many reviews to request per visited entry.
	ReviewCount int

	// VisitDelay is the politeness delay before each visit.
	VisitDelay time.Duration

	// RetryBackoff is the wait between the first failed visit attempt and
	// its single retry.
	RetryBackoff time.Duration

	// PurchaseTimeout bounds the purchase-authorization request.
	PurchaseTimeout time.Duration

	// DownloadEnabled controls whether free binaries are downloaded.
	DownloadEnabled bool

	// StoreEnabled controls whether visit results are persisted.
	StoreEnabled bool

	// EnrichEnabled controls whether the public store page is scraped for
	// supplementary fields (category, required OS version).
	EnrichEnabled bool

	// DownloadDir is where downloaded binaries are written.
	// Defaults to the XDG data directory.
	DownloadDir string

	// DBDir is the directory holding the SQLite database.
	// Defaults to the XDG data directory.
	DBDir string

	// AuthURL, CatalogURL, and StorePageURL are the service endpoints.
	// Tests override these with httptest server addresses.
	AuthURL      string
	CatalogURL   string
	StorePageURL string

	// ClientID and the user agents identify the client to the service.
	ClientID          string
	LoginUserAgent    string
	MarketUserAgent   string
	DownloadUserAgent string

	// Verbose enables slog.LevelDebug output.
	Verbose bool

	// JSONReport and MarkdownReport select the summary format.
	// Mutually exclusive; the default is a human-readable text summary.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile, when set, receives the summary instead of stdout.
	ReportFile string

	// ConfigFilePath is an explicit path to the YAML config file. Empty
	// means search the working directory and then the home directory.
	ConfigFilePath string
}

// NewConfig creates a Config with all defaults applied.
func NewConfig() *Config {
	return &Config{
		MaxIterations:     DefaultMaxIterations,
		ReviewCount:       DefaultReviewCount,
		VisitDelay:        DefaultVisitDelay,
		RetryBackoff:      DefaultRetryBackoff,
		PurchaseTimeout:   DefaultPurchaseTimeout,
		DownloadEnabled:   true,
		StoreEnabled:      true,
		EnrichEnabled:     true,
		DownloadDir:       filepath.Join(XDGDataDir(), "apps"),
		DBDir:             XDGDataDir(),
		AuthURL:           DefaultAuthURL,
		CatalogURL:        DefaultCatalogURL,
		StorePageURL:      DefaultStorePageURL,
		ClientID:          DefaultClientID,
		LoginUserAgent:    DefaultLoginUserAgent,
		MarketUserAgent:   DefaultMarketUserAgent,
		DownloadUserAgent: DefaultDownloadUserAgent,
	}
}

// XDGDataDir returns the XDG data directory for playcrawl.
// On Linux this is ~/.local/share/playcrawl.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for playcrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration before any network call is made.
// It returns the first problem found; credential problems are fatal
// configuration errors, not authentication failures.
func (c *Config) Validate() error {
	if c.User == "" || c.Password == "" {
		return ErrNoCredentials
	}
	if c.DeviceID == "" {
		return ErrNoDeviceID
	}
	if c.Seed == "" {
		return ErrNoSeed
	}
	if c.MaxIterations <= 0 {
		return ErrInvalidIterations
	}
	if c.ReviewCount < 0 {
		return ErrInvalidReviewCount
	}
	if c.VisitDelay < 0 || c.RetryBackoff < 0 {
		return ErrInvalidDelay
	}
	if c.PurchaseTimeout <= 0 {
		return ErrInvalidPurchaseTimeout
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}
