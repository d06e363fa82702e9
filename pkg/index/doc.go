// Package index is the semantic retrieval index over transaction texts.
//
// Documents are embedded once (embeddings are cached by content hash) and
// stored in a sqlite-vec vec0 table with cosine distance. Search returns ids
// ordered by ascending distance; smaller is more similar.
package index
