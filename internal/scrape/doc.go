// Package scrape enriches visited entries with fields that the binary
// protocol does not expose but the public store web page does. Enrichment
// is strictly best effort: the page layout is not a stable interface, so
// callers treat every failure as "no supplementary data".
package scrape
