// Package dataprocessing implements the ETL core: period inference from
// file names, robust tabular reading across formats and encodings, operator
// master construction, accounting archive extraction with business-rule
// filtering, enrichment and consolidation of the expense fact table, and
// aggregate statistics generation.
//
// The pipeline is single-threaded and linear. Each stage produces a new
// in-memory table consumed by the next; per-unit failures (one unreadable
// file, one bad archive) are logged and skipped so partial data never
// aborts a run, while final export failures propagate.
package dataprocessing
