// Package assistant assembles the finance agent from configuration and
// exposes its operations: RunAgent answers questions by consensus over
// tool-calling runs, ClassifyTransaction labels one transaction and Ingest
// loads statements.
package assistant
