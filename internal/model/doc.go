// Package model defines the core data structures shared across playcrawl.
// It contains catalog entries, reviews, related-entry stubs, enrichment data,
// and crawl run reports. The package has no dependencies on other internal
// packages so it can be imported from anywhere without import cycles.
package model
