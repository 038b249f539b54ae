package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/kv/badgerkv"
	"github.com/roach88/kinstore/internal/record"
)

func TestOpen_CreatesStore(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)

	assert.Equal(t, BackendSQLite, s.Backend())
	assert.Equal(t, CurrentVersion, s.Version())
	assert.FileExists(t, filepath.Join(dir, sqliteFileName))
	assert.FileExists(t, filepath.Join(dir, lockFileName))
	assert.NotEmpty(t, LockHolder(dir))
	assert.True(t, s.AbortPossible())
	assert.False(t, s.HasChanged())

	require.NoError(t, s.Close())
	assert.NoFileExists(t, filepath.Join(dir, lockFileName))
	assert.NoError(t, s.Close(), "Close is idempotent")
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	for _, backend := range []string{BackendSQLite, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			s := openTestStore(t, dir, WithBackend(backend))
			h := add(t, s, newPerson("Ada", "Lovelace"))
			require.NoError(t, s.Close())

			s2 := openTestStore(t, dir)
			assert.Equal(t, backend, s2.Backend(), "backend detected from the directory")
			p, err := s2.GetPerson(ctx, h)
			require.NoError(t, err)
			assert.Equal(t, "Lovelace", p.Surname())
			assert.Equal(t, []string{"Lovelace"}, s2.Surnames())

			byID, err := s2.GetPersonByID(ctx, "I0000")
			require.NoError(t, err)
			assert.Equal(t, h, byID.Handle)
		})
	}
}

func TestOpen_BackendMismatch(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, WithBackend(BackendBadger))
	require.NoError(t, s.Close())

	_, err := Open(context.Background(), dir, WithBackend(BackendSQLite), WithLogger(discardLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "badger")
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), WithBackend("lmdb"))
	assert.Error(t, err)
}

func TestOpen_Locked(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)

	_, err := Open(ctx, dir, WithLogger(discardLogger()))
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, UserMessage(err), "open in another program")

	require.NoError(t, s.Close())

	// A lock left behind by a crashed process
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), []byte("someone@elsewhere"), 0o644))
	assert.Equal(t, "someone@elsewhere", LockHolder(dir))

	_, err = Open(ctx, dir, WithLogger(discardLogger()))
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "someone@elsewhere")

	s2, err := Open(ctx, dir, WithForceUnlock(), WithLogger(discardLogger()))
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestOpen_ReadOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)
	h := add(t, s, newPerson("Ada", "Lovelace"))
	require.NoError(t, s.Close())

	ro := openTestStore(t, dir, WithReadOnly())
	assert.True(t, ro.ReadOnly())
	assert.NoFileExists(t, filepath.Join(dir, lockFileName), "read-only opens take no lock")

	_, err := ro.GetPerson(ctx, h)
	require.NoError(t, err)

	_, err = ro.Begin(ctx, "edit")
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, ro.SetDefaultPerson(ctx, h), ErrReadOnly)
}

func TestOpen_MissingStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "absent")

	_, err := Open(ctx, dir, WithReadOnly())
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = Open(ctx, dir, WithCreate(false))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

// setVersion rewrites the stored format version behind the store's back.
func setVersion(t *testing.T, dir string, v int) {
	t.Helper()
	s := openTestStore(t, dir)
	rawUpdate(t, s, func(tx kv.Txn) error { return putMeta(tx, metaVersion, v) })
	require.NoError(t, s.Close())
}

func TestOpen_VersionGate(t *testing.T) {
	tests := []struct {
		name    string
		version int
		newer   bool
	}{
		{"too new", CurrentVersion + 1, true},
		{"too old", MinSupportedVersion - 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			setVersion(t, dir, tt.version)

			_, err := Open(context.Background(), dir, WithLogger(discardLogger()))
			require.Error(t, err)
			assert.True(t, IsVersionError(err))

			var se *Error
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.version, se.Found)
			assert.Equal(t, MinSupportedVersion, se.Min)
			assert.Equal(t, CurrentVersion, se.Max)
			if tt.newer {
				assert.Contains(t, UserMessage(err), "newer version")
			} else {
				assert.Contains(t, UserMessage(err), "too old")
			}
			assert.NoFileExists(t, filepath.Join(dir, lockFileName), "failed open releases the lock")
		})
	}
}

func TestOpen_UpgradesVersion2(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Version 2 keyed the surname index on the raw surname.
	decomposed := "Jose\u0301"
	s := openTestStore(t, dir)
	h := add(t, s, newPerson("Ana", decomposed))
	rawUpdate(t, s, func(tx kv.Txn) error {
		if err := tx.DropTable(tableSurnames); err != nil {
			return err
		}
		if err := tx.CreateTable(kv.TableSpec{Name: tableSurnames, Dup: true}); err != nil {
			return err
		}
		if err := tx.Put(tableSurnames, []byte(decomposed), []byte(h)); err != nil {
			return err
		}
		return putMeta(tx, metaVersion, 2)
	})
	require.NoError(t, s.Close())

	_, err := Open(ctx, dir, WithReadOnly(), WithLogger(discardLogger()))
	require.ErrorIs(t, err, ErrNeedsUpgrade)

	s2 := openTestStore(t, dir)
	assert.Equal(t, CurrentVersion, s2.Version())

	hs, err := s2.SurnameHandles(ctx, "Jos\u00e9")
	require.NoError(t, err)
	assert.Equal(t, []record.Handle{h}, hs)
	assert.Equal(t, []string{"Jos\u00e9"}, s2.Surnames())
	requireConsistent(t, s2)
}

func TestOpen_RebuildsMissingDerivedTables(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	p := add(t, s, newPerson("Ada", "Lovelace"))
	f := add(t, s, &record.Family{Father: p})

	// A crash in the middle of a batch leaves the detached tables missing.
	rawUpdate(t, s, func(tx kv.Txn) error {
		if err := tx.DropTable(tableRefByTarget); err != nil {
			return err
		}
		return tx.DropTable(tableSurnames)
	})
	require.NoError(t, s.Close())

	s2 := openTestStore(t, dir)
	assert.Equal(t, []record.Ref{{Kind: record.KindFamily, Handle: f}}, backlinks(t, s2, p))
	assert.Equal(t, []string{"Lovelace"}, s2.Surnames())
	requireConsistent(t, s2)
}

func TestOpen_RepairsAfterInterruptedCommit(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir, WithBackend(BackendBadger))
	p := add(t, s, newPerson("Ada", "Lovelace"))
	f := add(t, s, &record.Family{Father: p})

	// The table is present but lost its rows, as after a crash between two
	// steps of an oversized commit.
	rawUpdate(t, s, func(tx kv.Txn) error {
		if err := tx.DropTable(tableRefByTarget); err != nil {
			return err
		}
		return tx.CreateTable(kv.TableSpec{Name: tableRefByTarget, Dup: true})
	})
	require.NoError(t, s.Close())

	db, err := badger.Open(badger.DefaultOptions(filepath.Join(dir, badgerDirName)).WithLogger(nil))
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *badger.Txn) error {
		return tx.Set(badgerkv.CommitMarkerKey, []byte{})
	}))
	require.NoError(t, db.Close())

	s2 := openTestStore(t, dir)
	assert.Equal(t, []record.Ref{{Kind: record.KindFamily, Handle: f}}, backlinks(t, s2, p))
	requireConsistent(t, s2)
	require.NoError(t, s2.Close())

	db, err = badger.Open(badger.DefaultOptions(filepath.Join(dir, badgerDirName)).WithLogger(nil))
	require.NoError(t, err)
	defer db.Close()
	err = db.View(func(tx *badger.Txn) error {
		_, err := tx.Get(badgerkv.CommitMarkerKey)
		return err
	})
	assert.ErrorIs(t, err, badger.ErrKeyNotFound, "marker cleared once repaired")
}

func TestClose_AbortsOpenTransaction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)

	txn := begin(t, s, "never committed")
	_, err := s.AddPerson(ctx, txn, newPerson("Ada", "Lovelace"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = txn.Commit()
	assert.Error(t, err)

	s2 := openTestStore(t, dir)
	n, err := s2.Count(ctx, record.KindPerson)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, record.KindPerson, "h0001")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Begin(ctx, "late")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Undo(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	dir := t.TempDir()
	s := openTestStore(t, dir, WithRegisterer(reg))

	add(t, s, newPerson("Ada", "Lovelace"))
	txn := begin(t, s, "discarded")
	require.NoError(t, txn.Abort())
	_, err := s.Undo(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(s.metrics.transactions.WithLabelValues("interactive", "committed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(s.metrics.transactions.WithLabelValues("interactive", "aborted")))
	assert.Equal(t, 1.0, promtest.ToFloat64(s.metrics.undoRedo.WithLabelValues("undo")))
	assert.Equal(t, 2.0, promtest.ToFloat64(s.metrics.mutations.WithLabelValues("person", "put"))+
		promtest.ToFloat64(s.metrics.mutations.WithLabelValues("person", "delete")))
	assert.Equal(t, 0.0, promtest.ToFloat64(s.metrics.openTxns))

	// A store reopened against the same registry adopts the collectors.
	require.NoError(t, s.Close())
	s2 := openTestStore(t, dir, WithRegisterer(reg))
	add(t, s2, newPerson("Charles", "Babbage"))
	assert.Equal(t, 2.0, promtest.ToFloat64(s2.metrics.transactions.WithLabelValues("interactive", "committed")))
}
