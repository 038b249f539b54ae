// Package kvtest holds the conformance suite every kv.Engine must pass.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/kv"
)

// OpenFunc opens a fresh, empty engine for one subtest. The suite closes it.
type OpenFunc func(t *testing.T) kv.Engine

// Run executes the conformance suite against engines produced by open.
func Run(t *testing.T, open OpenFunc) {
	tests := []struct {
		name string
		fn   func(t *testing.T, e kv.Engine)
	}{
		{"TableLifecycle", testTableLifecycle},
		{"UniqueTable", testUniqueTable},
		{"DupTable", testDupTable},
		{"CursorOrderAndPaging", testCursorOrderAndPaging},
		{"CursorPrefixAndKey", testCursorPrefixAndKey},
		{"ReadYourWrites", testReadYourWrites},
		{"RollbackDiscardsDDL", testRollbackDiscardsDDL},
		{"ReadOnlyTxn", testReadOnlyTxn},
		{"ClosedTxn", testClosedTxn},
		{"CursorAcrossWriter", testCursorAcrossWriter},
		{"MissingTable", testMissingTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := open(t)
			t.Cleanup(func() { e.Close() })
			tt.fn(t, e)
		})
	}
}

var (
	uniq = kv.TableSpec{Name: "uniq"}
	dup  = kv.TableSpec{Name: "dups", Dup: true}
)

func update(t *testing.T, e kv.Engine, fn func(tx kv.Txn)) {
	t.Helper()
	tx, err := e.Begin(context.Background(), true)
	require.NoError(t, err)
	defer tx.Rollback()
	fn(tx)
	require.NoError(t, tx.Commit())
}

func view(t *testing.T, e kv.Engine, fn func(tx kv.Txn)) {
	t.Helper()
	tx, err := e.Begin(context.Background(), false)
	require.NoError(t, err)
	defer tx.Rollback()
	fn(tx)
}

func collect(t *testing.T, c kv.Cursor) []string {
	t.Helper()
	defer c.Close()
	var out []string
	for c.Next() {
		out = append(out, string(c.Key())+"="+string(c.Value()))
	}
	require.NoError(t, c.Err())
	return out
}

func testTableLifecycle(t *testing.T, e kv.Engine) {
	update(t, e, func(tx kv.Txn) {
		ok, err := tx.HasTable(uniq.Name)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, tx.CreateTable(uniq))
		require.NoError(t, tx.CreateTable(uniq), "create is idempotent")
		require.NoError(t, tx.Put(uniq.Name, []byte("a"), []byte("1")))
	})

	view(t, e, func(tx kv.Txn) {
		ok, err := tx.HasTable(uniq.Name)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.DropTable(uniq.Name))
		require.NoError(t, tx.DropTable(uniq.Name), "drop is idempotent")
		require.NoError(t, tx.CreateTable(uniq))
		n, err := tx.Count(uniq.Name)
		require.NoError(t, err)
		assert.Zero(t, n, "recreated table starts empty")
	})
}

func testUniqueTable(t *testing.T, e kv.Engine) {
	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.CreateTable(uniq))
		require.NoError(t, tx.Put(uniq.Name, []byte("k"), []byte("v1")))
		require.NoError(t, tx.Put(uniq.Name, []byte("k"), []byte("v2")))
		require.NoError(t, tx.Put(uniq.Name, []byte("other"), []byte("x")))
	})

	view(t, e, func(tx kv.Txn) {
		v, err := tx.Get(uniq.Name, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, "v2", string(v), "put overwrites")

		n, err := tx.Count(uniq.Name)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = tx.Get(uniq.Name, []byte("nope"))
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.Delete(uniq.Name, []byte("k")))
		require.NoError(t, tx.Delete(uniq.Name, []byte("k")), "delete of absent key is not an error")
	})

	view(t, e, func(tx kv.Txn) {
		_, err := tx.Get(uniq.Name, []byte("k"))
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})
}

func testDupTable(t *testing.T, e kv.Engine) {
	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.CreateTable(dup))
		for _, v := range []string{"h3", "h1", "h2", "h1"} {
			require.NoError(t, tx.Put(dup.Name, []byte("Smith"), []byte(v)))
		}
		require.NoError(t, tx.Put(dup.Name, []byte("Jones"), []byte("h9")))
	})

	view(t, e, func(tx kv.Txn) {
		v, err := tx.Get(dup.Name, []byte("Smith"))
		require.NoError(t, err)
		assert.Equal(t, "h1", string(v), "get returns the smallest duplicate")

		got := collect(t, tx.Cursor(dup.Name, kv.CursorOptions{Key: []byte("Smith")}))
		assert.Equal(t, []string{"Smith=h1", "Smith=h2", "Smith=h3"}, got)
	})

	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.DeleteValue(dup.Name, []byte("Smith"), []byte("h2")))
		got := collect(t, tx.Cursor(dup.Name, kv.CursorOptions{Key: []byte("Smith")}))
		assert.Equal(t, []string{"Smith=h1", "Smith=h3"}, got)

		require.NoError(t, tx.Delete(dup.Name, []byte("Smith")))
		n, err := tx.Count(dup.Name)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func testCursorOrderAndPaging(t *testing.T, e kv.Engine) {
	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.CreateTable(uniq))
		require.NoError(t, tx.CreateTable(dup))
		for i := 9; i >= 0; i-- {
			k := []byte(fmt.Sprintf("k%02d", i))
			require.NoError(t, tx.Put(uniq.Name, k, []byte{byte('a' + i)}))
			require.NoError(t, tx.Put(dup.Name, []byte("x"), k))
		}
	})

	view(t, e, func(tx kv.Txn) {
		got := collect(t, tx.Cursor(uniq.Name, kv.CursorOptions{PageSize: 3}))
		require.Len(t, got, 10)
		assert.Equal(t, "k00=a", got[0])
		assert.Equal(t, "k09=j", got[9])

		got = collect(t, tx.Cursor(dup.Name, kv.CursorOptions{PageSize: 4}))
		require.Len(t, got, 10)
		assert.Equal(t, "x=k00", got[0])
		assert.Equal(t, "x=k09", got[9])

		got = collect(t, tx.Cursor(uniq.Name, kv.CursorOptions{PageSize: 5}))
		assert.Len(t, got, 10, "page size dividing the row count exactly")
	})
}

func testCursorPrefixAndKey(t *testing.T, e kv.Engine) {
	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.CreateTable(uniq))
		for _, k := range []string{"a", "ab", "abc", "b", "ba"} {
			require.NoError(t, tx.Put(uniq.Name, []byte(k), []byte(k)))
		}
	})

	view(t, e, func(tx kv.Txn) {
		got := collect(t, tx.Cursor(uniq.Name, kv.CursorOptions{Prefix: []byte("ab")}))
		assert.Equal(t, []string{"ab=ab", "abc=abc"}, got)

		got = collect(t, tx.Cursor(uniq.Name, kv.CursorOptions{Key: []byte("ab")}))
		assert.Equal(t, []string{"ab=ab"}, got, "exact key excludes longer keys")

		got = collect(t, tx.Cursor(uniq.Name, kv.CursorOptions{Key: []byte("zz")}))
		assert.Empty(t, got)
	})
}

func testReadYourWrites(t *testing.T, e kv.Engine) {
	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.CreateTable(uniq))
		require.NoError(t, tx.Put(uniq.Name, []byte("k"), []byte("v")))

		v, err := tx.Get(uniq.Name, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, "v", string(v))

		got := collect(t, tx.Cursor(uniq.Name, kv.CursorOptions{}))
		assert.Equal(t, []string{"k=v"}, got)
	})
}

func testRollbackDiscardsDDL(t *testing.T, e kv.Engine) {
	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.CreateTable(uniq))
		require.NoError(t, tx.Put(uniq.Name, []byte("k"), []byte("v")))
	})

	tx, err := e.Begin(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, tx.DropTable(uniq.Name))
	require.NoError(t, tx.CreateTable(dup))
	require.NoError(t, tx.Rollback())

	view(t, e, func(tx kv.Txn) {
		v, err := tx.Get(uniq.Name, []byte("k"))
		require.NoError(t, err)
		assert.Equal(t, "v", string(v), "dropped table restored by rollback")

		ok, err := tx.HasTable(dup.Name)
		require.NoError(t, err)
		assert.False(t, ok, "created table discarded by rollback")
	})
}

func testReadOnlyTxn(t *testing.T, e kv.Engine) {
	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.CreateTable(uniq))
	})

	view(t, e, func(tx kv.Txn) {
		assert.False(t, tx.Writable())
		assert.ErrorIs(t, tx.Put(uniq.Name, []byte("k"), []byte("v")), kv.ErrReadOnly)
		assert.ErrorIs(t, tx.CreateTable(dup), kv.ErrReadOnly)
		assert.ErrorIs(t, tx.Delete(uniq.Name, []byte("k")), kv.ErrReadOnly)
	})
}

func testClosedTxn(t *testing.T, e kv.Engine) {
	tx, err := e.Begin(context.Background(), true)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTable(uniq))
	require.NoError(t, tx.Commit())

	assert.ErrorIs(t, tx.Commit(), kv.ErrTxnDone)
	assert.NoError(t, tx.Rollback(), "rollback after commit is a no-op")
	_, err = tx.Get(uniq.Name, []byte("k"))
	assert.ErrorIs(t, err, kv.ErrTxnDone)
}

// testCursorAcrossWriter iterates a read cursor while separate write
// transactions commit between pages.
func testCursorAcrossWriter(t *testing.T, e kv.Engine) {
	update(t, e, func(tx kv.Txn) {
		require.NoError(t, tx.CreateTable(uniq))
		for i := 0; i < 20; i++ {
			require.NoError(t, tx.Put(uniq.Name, []byte(fmt.Sprintf("k%02d", i)), []byte("v")))
		}
	})

	rtx, err := e.Begin(context.Background(), false)
	require.NoError(t, err)
	defer rtx.Rollback()

	c := rtx.Cursor(uniq.Name, kv.CursorOptions{PageSize: 4})
	defer c.Close()

	seen := 0
	for c.Next() {
		seen++
		update(t, e, func(tx kv.Txn) {
			require.NoError(t, tx.Put(uniq.Name, c.Key(), []byte("w")))
		})
	}
	require.NoError(t, c.Err())
	assert.Equal(t, 20, seen)
}

func testMissingTable(t *testing.T, e kv.Engine) {
	view(t, e, func(tx kv.Txn) {
		_, err := tx.Get("ghost", []byte("k"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, kv.ErrNoTable), "got %v", err)

		c := tx.Cursor("ghost", kv.CursorOptions{})
		assert.False(t, c.Next())
		assert.ErrorIs(t, c.Err(), kv.ErrNoTable)
		assert.NoError(t, c.Close())
	})
}
