package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestStore opens a fresh store in a temporary directory with
// deterministic handles ("h0001", ...) and a deterministic clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return openTestStore(t, t.TempDir(), opts...)
}

// openTestStore opens the store in dir and closes it when the test ends.
func openTestStore(t *testing.T, dir string, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithHandleGenerator(testutil.NewSequentialHandles("h")),
		WithClock(testutil.NewClock().Now),
		WithLogger(discardLogger()),
	}
	s, err := Open(context.Background(), dir, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testBackends lists the engine configurations every behavioural test runs
// against.
var testBackends = []struct {
	name string
	opts []Option
}{
	{"sqlite", []Option{WithBackend(BackendSQLite)}},
	{"sqlite-modernc", []Option{WithBackend(BackendSQLite), WithSQLiteDriver("sqlite")}},
	{"badger", []Option{WithBackend(BackendBadger)}},
	{"badger-memory", []Option{WithInMemory()}},
}

// forEachBackend runs fn once per backend, each with a fresh store.
func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store), opts ...Option) {
	for _, b := range testBackends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, createTestStore(t, append(append([]Option{}, b.opts...), opts...)...))
		})
	}
}

func newPerson(first, surname string) *record.Person {
	return &record.Person{
		PrimaryName: record.Name{First: first, Surname: surname},
		Gender:      record.GenderUnknown,
	}
}

// begin opens an interactive transaction or fails the test.
func begin(t *testing.T, s *Store, desc string, opts ...BeginOption) *Transaction {
	t.Helper()
	txn, err := s.Begin(context.Background(), desc, opts...)
	require.NoError(t, err)
	return txn
}

func commit(t *testing.T, txn *Transaction) []Change {
	t.Helper()
	changes, err := txn.Commit()
	require.NoError(t, err)
	return changes
}

// add commits r in a transaction of its own and returns its handle.
func add(t *testing.T, s *Store, r record.Record) record.Handle {
	t.Helper()
	txn := begin(t, s, "add "+r.Kind().String())
	h, err := s.Add(context.Background(), txn, r)
	require.NoError(t, err)
	commit(t, txn)
	return h
}

// update commits r in a transaction of its own.
func update(t *testing.T, s *Store, r record.Record) {
	t.Helper()
	txn := begin(t, s, "edit "+r.Kind().String())
	require.NoError(t, s.CommitRecord(context.Background(), txn, r, testutil.Epoch))
	commit(t, txn)
}

func backlinks(t *testing.T, s *Store, h record.Handle, kinds ...record.Kind) []record.Ref {
	t.Helper()
	refs, err := s.Backlinks(context.Background(), h, kinds...)
	require.NoError(t, err)
	return refs
}

// dumpTables renders every record, index and reference table as
// "key=value" hex lines in native order. Metadata is left out.
func dumpTables(t *testing.T, s *Store) map[string][]string {
	t.Helper()
	tx, err := s.engine.Begin(context.Background(), false)
	require.NoError(t, err)
	defer tx.Rollback()

	out := map[string][]string{}
	for _, spec := range append(primaryTables(), secondaryTables()...) {
		if spec.Name == tableMetadata {
			continue
		}
		ok, err := tx.HasTable(spec.Name)
		require.NoError(t, err)
		if !ok {
			out[spec.Name] = nil
			continue
		}
		c := tx.Cursor(spec.Name, kv.CursorOptions{})
		rows := []string{}
		for c.Next() {
			rows = append(rows, fmt.Sprintf("%x=%x", c.Key(), c.Value()))
		}
		require.NoError(t, c.Err())
		c.Close()
		out[spec.Name] = rows
	}
	return out
}

// rawUpdate writes directly to the engine, bypassing every invariant.
func rawUpdate(t *testing.T, s *Store, fn func(tx kv.Txn) error) {
	t.Helper()
	tx, err := s.engine.Begin(context.Background(), true)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, fn(tx))
	require.NoError(t, tx.Commit())
}

// requireConsistent fails the test when Check finds any problem.
func requireConsistent(t *testing.T, s *Store) {
	t.Helper()
	report, err := s.Check(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK(), "problems: %v", report.Problems)
}
