// Package main provides the entry point for the playcrawl CLI.
//
// playcrawl crawls a mobile-app catalog service starting from a seed
// entry, following related-entries links, and stores details, reviews,
// and optionally the free binaries it encounters.
//
// Usage:
//
//	playcrawl crawl <doc-id>
//	playcrawl details <doc-id>...
//
// See --help for all available options.
package main

// main is the entry point for playcrawl.
func main() {
	Execute()
}
