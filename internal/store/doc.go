// Package store is the embedded object store for genealogical records.
//
// The store keeps:
//   - Primary tables: one per record kind, handle -> encoded record
//   - Id indices: one per kind, human id -> handle
//   - Surname index: NFC-normalised primary surname -> person handles
//   - Reference map: every (owner, target) handle pair, plus by-owner and
//     by-target indices used for backlink queries
//   - Metadata: version, bookmarks, researcher, custom types, name formats,
//     id prefixes, default person
//   - Name groups: surname -> grouping name
//
// # Invariants
//
// Reference invariant:
//   - For every committed record R, the rows owned by R's handle equal
//     record.References(R). Every commit diffs and repairs the rows inside the
//     same underlying write transaction as the primary write.
//
// Index consistency:
//   - Every primary write removes the old index key and inserts the new one.
//     Indices are duplicate-sorted tables; uniqueness of human ids is a
//     convention the store does not enforce.
//
// Undo inverse law:
//   - Undo writes back the exact bytes recorded before each mutation,
//     including reference rows, so commit followed by undo leaves every
//     table byte-identical to its prior state.
//
// # Transactions
//
// Interactive transactions record (old, new) pre-images and become one undo
// frame on commit. Batch transactions skip pre-images, detach the surname
// index and the by-target reference index for their duration and rebuild
// them at commit. While a batch is open, surname and backlink queries return
// ErrIndexDetached rather than stale results, and the undo history is gone
// for the rest of the session (AbortPossible reports false).
//
// A failure anywhere inside a transaction rolls back the whole underlying
// write transaction, batch or not.
//
// # Concurrency
//
// A Store is owned by one goroutine. It assumes a single writer per store
// directory and enforces it with a lock file. Reads issued while a
// transaction is open go through that transaction and see its writes.
package store
