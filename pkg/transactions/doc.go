// Package transactions persists ingested transaction records in SQLite.
//
// Records are written once at ingest time and read back by id when the
// search tool resolves index hits, so lookups preserve caller order.
package transactions
