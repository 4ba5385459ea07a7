// Package metadata loads the configured metadata sources and matches file
// records against them.
//
// Each source (catalog query, spreadsheet sheet, or delimited text file)
// yields a row set with lazily built per-field value indices and a schema
// normalization map, so repeated rule evaluation over a batch stays cheap.
// The Resolver owns those caches for exactly one run and implements
// first-rule-wins matching with fail-fast ambiguity: a key that matches more
// than one row exactly aborts the whole run, because a catalog data-quality
// problem must never silently decide a transfer.
package metadata
