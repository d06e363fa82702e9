// Package ingest loads CSV bank statements into the transaction store and
// the search index.
//
// Each row is parsed (amount, currency and date), classified against the
// category taxonomy, persisted and indexed under the text
//
//	<name>. Note: <note>. Subcategory: <sub>. Category: <cat>
//
// A Watcher can feed the pipeline from an inbox directory.
package ingest
