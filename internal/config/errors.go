package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Package-level sentinels so callers can branch with errors.Is while the
// messages stay operator-readable.
var (
	// ErrNoCredentials is returned when the username or password is missing.
	// Both are required before any network call is made.
	ErrNoCredentials = errors.New("missing credentials: --user and --password (or PLAYCRAWL_USER / PLAYCRAWL_PASSWORD) are required")

	// ErrNoDeviceID is returned when no device identifier was provided.
	// The catalog service rejects calls without a registered device id.
	ErrNoDeviceID = errors.New("missing device id: --device-id (or PLAYCRAWL_DEVICE_ID) is required")

	// ErrNoSeed is returned when no seed doc id was provided.
	ErrNoSeed = errors.New("no seed specified: provide a package doc id to start crawling from")

	// ErrInvalidIterations is returned when the visit budget is not positive.
	ErrInvalidIterations = errors.New("invalid iterations: must be positive")

	// ErrInvalidReviewCount is returned when the review count is negative.
	// Zero is valid and means "fetch no reviews".
	ErrInvalidReviewCount = errors.New("invalid review count: must be non-negative")

	// ErrInvalidDelay is returned when the visit delay or retry backoff is
	// negative. Use 0 to disable the delay.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidPurchaseTimeout is returned when the purchase timeout is
	// not positive. The purchase call must always be bounded.
	ErrInvalidPurchaseTimeout = errors.New("invalid purchase timeout: must be positive")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
