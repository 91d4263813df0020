// Package extract defines the core types shared across the extraction
// pipeline: documents, chunks, attempt outcomes, per-chunk records, and the
// collaborator interfaces implemented by the recognize, scratch, ledger, and
// publisher subpackages.
package extract
