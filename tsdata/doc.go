// Package tsdata implements the monsoon tsdata v2 file format: a
// self-contained, dictionary-compressed time-series history file laid out as
// either a sequence of columnar "tables" blocks (read-only, bulk-produced)
// or a chain of append-only "list" records (writable via PushBack).
package tsdata
