// Package crawler walks the catalog's related-entries graph. Starting from
// one seed entry it visits entries depth first, collects details and reviews
// for each, optionally obtains the free binaries, and hands every completed
// visit to the persistence layer. Traversal is bounded by a visit budget and
// deduplicated by doc id, so the crawl always terminates even though the
// related-entries graph is cyclic.
package crawler
