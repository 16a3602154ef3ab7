// Package codec translates between opaque proxy byte buffers and
// structured records: the canonical JSON batch-update payload consumed by
// the store, clash-format subscription documents, and hand-written TOML
// proxy files used by the CLI. Decoded descriptors are treated as
// pre-validated by the store once decode succeeds.
package codec
