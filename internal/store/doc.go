// Package store persists windlass client configuration in a single SQLite
// file: profiles and their plugin graphs, proxy groups with strictly
// ordered proxy lists, remote resources with cached retrieval validators,
// and subscription bookkeeping.
//
// # Architecture
//
// SQLiteStore implements the Store interface over database/sql with the
// modernc.org/sqlite driver. The database is opened once per process; each
// public mutation runs inside a single transaction, so either all of its
// effects commit or none do. The store performs no network I/O — fetched
// payloads arrive as already-materialized buffers.
//
// Two collaborators are injected at construction:
//
//   - PluginVerifier gates plugin creation and update
//     (WithPluginVerifier)
//   - BatchDecoder decodes batch-update payloads (WithBatchDecoder)
//
// # Invariants
//
//   - At most one plugin per profile carries the entry flag; SetEntryPlugin
//     swaps the flag atomically.
//   - Proxy order values increase monotonically per group, with gaps
//     permitted. ReorderProxies permutes the existing order values of a
//     window without inventing new ones; BatchUpdateProxiesByGroup is the
//     only operation that renumbers densely.
//   - Deleting a profile cascades to its plugins; deleting a proxy group
//     cascades to its proxies and subscription, and removes the backing
//     resource when no other subscription references it.
//
// # SQLite Configuration
//
// Applied through the DSN on every pooled connection:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// # Error Handling
//
// Operations return sentinel errors (ErrNotFound, ErrDuplicateName,
// ErrDuplicateKey, ErrInvalidParam, ErrInvalidRange, ErrDecode,
// ErrResourceInUse, ErrBusy) wrapped with context; Classify flattens any
// store error into the (kind, message, context) triple the call boundary
// reports.
//
// # Migrations
//
// The schema is created on first open; later schema changes are additive
// column migrations checked against pragma_table_info, safe to run
// repeatedly.
package store
