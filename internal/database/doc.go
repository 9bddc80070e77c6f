// Package database provides SQLite-based persistence for crawl data:
// entry snapshots, their reviews, and per-run crawl summaries.
package database
