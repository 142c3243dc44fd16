// Package catalog defines the tool catalog data model shared across the
// acquisition pipeline, plus the read-time merge that turns the curated static
// list and crawled store records into the externally visible view.
//
// Records flow one way: sources produce SourceResult values, the crawl
// orchestrator accelerates and upserts them as ToolRecord rows, and BuildView
// overlays those rows on the static list whenever a client reads the catalog.
// Nothing in this package performs I/O.
package catalog
