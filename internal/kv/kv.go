// Package kv defines the ordered key/value engine the object store runs on.
//
// An engine holds named tables of byte keys and byte values kept in key
// order. A table is either unique (one value per key, Put overwrites) or
// duplicate-sorted (many values per key, kept in value order, Put of an
// existing pair is a no-op). All access goes through a transaction.
//
// Two backends implement the interface: sqlitekv (SQLite through
// database/sql) and badgerkv (Badger LSM tree). Both pass the shared
// conformance suite in kvtest.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("kv: key not found")

	// ErrNoTable is returned when a table has not been created.
	ErrNoTable = errors.New("kv: no such table")

	// ErrReadOnly is returned by mutating calls on a read transaction.
	ErrReadOnly = errors.New("kv: read-only transaction")

	// ErrTxnDone is returned by calls on a committed or rolled back transaction.
	ErrTxnDone = errors.New("kv: transaction already closed")
)

// TableSpec declares a table.
type TableSpec struct {
	Name string
	Dup  bool
}

// Engine is an open key/value environment.
type Engine interface {
	// Begin starts a transaction. The engine assumes a single writer; the
	// caller serialises writable transactions.
	Begin(ctx context.Context, writable bool) (Txn, error)

	// Sync flushes pending writes to stable storage.
	Sync() error

	// Close releases every resource. It is safe to call more than once.
	Close() error

	// Backend names the implementation ("sqlite", "badger").
	Backend() string
}

// Recoverer is implemented by engines whose oversized commits are written
// in several steps and so are not atomic across a crash.
type Recoverer interface {
	// Interrupted reports whether such a commit was cut short.
	Interrupted() bool

	// Recovered clears the interrupted state once the caller has repaired
	// the data derived from the affected writes.
	Recovered() error
}

// Txn is a transaction. Writes are visible to reads issued through the same
// transaction before commit.
type Txn interface {
	// CreateTable creates the table if it does not exist.
	CreateTable(spec TableSpec) error

	// DropTable removes the table and its contents. Dropping a missing
	// table is not an error.
	DropTable(name string) error

	// HasTable reports whether the table exists.
	HasTable(name string) (bool, error)

	// Get returns the value stored under key. For duplicate tables it
	// returns the smallest value.
	Get(table string, key []byte) ([]byte, error)

	// Put stores key/value.
	Put(table string, key, value []byte) error

	// Delete removes every value stored under key.
	Delete(table string, key []byte) error

	// DeleteValue removes a single key/value pair from a duplicate table.
	DeleteValue(table string, key, value []byte) error

	// Cursor iterates the table in (key, value) order, restricted by opts.
	Cursor(table string, opts CursorOptions) Cursor

	// Count returns the number of key/value pairs in the table.
	Count(table string) (int, error)

	// Writable reports whether the transaction accepts writes.
	Writable() bool

	// Commit makes the writes durable. Commit on a read transaction only
	// releases it.
	Commit() error

	// Rollback discards the writes. Rollback after Commit is a no-op, so it
	// can always be deferred.
	Rollback() error
}

// CursorOptions restricts a cursor.
type CursorOptions struct {
	// Prefix limits iteration to keys starting with Prefix.
	Prefix []byte

	// Key limits iteration to a single exact key (all of its duplicates).
	// It takes precedence over Prefix.
	Key []byte

	// PageSize is the number of pairs fetched per round trip. Zero selects
	// DefaultPageSize.
	PageSize int
}

// DefaultPageSize is the cursor page size when none is given.
const DefaultPageSize = 256

// Cursor walks key/value pairs. Pairs are fetched in pages, so a cursor does
// not pin engine resources between pages; it must still be closed.
//
//	c := txn.Cursor("person", kv.CursorOptions{})
//	defer c.Close()
//	for c.Next() {
//		use(c.Key(), c.Value())
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close() error
}

// Pair is a key/value pair returned by a page fetch.
type Pair struct {
	Key   []byte
	Value []byte
}
