// Package badgerkv implements kv.Engine on Badger.
//
// Badger has a single flat keyspace, so tables are key prefixes:
//
//	0x00 <name>                       catalog entry, value = flags
//	0x01 <name> 0x00 <key>            unique table row, value = value
//	0x01 <name> 0x00 <key> 0x00 <v>   duplicate table row, value = v
//	0x02 "commit"                     set while an oversized commit flushes
//
// Duplicate-table keys therefore must not contain 0x00; Put rejects them.
// Catalog entries make table creation and removal transactional and
// persistent, so a table dropped by an interrupted batch is still missing
// when the store reopens.
//
// A write transaction reads from a Badger snapshot and keeps its own writes
// in an ordered in-memory overlay until Commit, so it is not bound by
// Badger's per-transaction size limit. Commit applies the overlay in one
// Badger transaction when it fits. Otherwise it streams the overlay through
// a WriteBatch under the commit marker; a crash during that flush is
// reported by Interrupted on the next Open.
package badgerkv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/btree"

	"github.com/roach88/kinstore/internal/kv"
)

const (
	catalogTag = 0x00
	dataTag    = 0x01
	markerTag  = 0x02
	flagDup    = 0x01
)

// CommitMarkerKey is the raw key present while an oversized commit is being
// written.
var CommitMarkerKey = []byte{markerTag, 'c', 'o', 'm', 'm', 'i', 't'}

// Options configures Open.
type Options struct {
	// SyncWrites makes every commit wait for an fsync.
	SyncWrites bool

	// InMemory keeps everything in memory; Dir is ignored.
	InMemory bool

	// MemTableSize overrides Badger's memtable size in bytes. It also bounds
	// how much one commit can write atomically. Zero keeps Badger's default.
	MemTableSize int64

	Logger *slog.Logger
}

// Engine is a Badger-backed kv.Engine.
type Engine struct {
	db          *badger.DB
	log         *slog.Logger
	interrupted bool
}

var (
	_ kv.Engine    = (*Engine)(nil)
	_ kv.Recoverer = (*Engine)(nil)
)

// Open opens or creates a Badger database in dir.
func Open(dir string, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	bopts := badger.DefaultOptions(dir).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(&badgerLogger{log: opts.Logger.With("component", "badger")})
	if opts.MemTableSize > 0 {
		bopts = bopts.WithMemTableSize(opts.MemTableSize)
	}
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	e := &Engine{db: db, log: opts.Logger}
	err = db.View(func(tx *badger.Txn) error {
		_, err := tx.Get(CommitMarkerKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err == nil {
			e.interrupted = true
		}
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	if e.interrupted {
		opts.Logger.Warn("badger: a large commit was interrupted; derived data needs a rebuild", "dir", dir)
	}
	opts.Logger.Debug("badger engine opened", "dir", dir, "sync_writes", opts.SyncWrites, "in_memory", opts.InMemory)
	return e, nil
}

func (e *Engine) Backend() string { return "badger" }

// Interrupted reports whether the commit marker was found at Open, or a
// commit failed part way through its flush since.
func (e *Engine) Interrupted() bool { return e.interrupted }

// Recovered clears the commit marker.
func (e *Engine) Recovered() error {
	if e.db == nil {
		return errors.New("badgerkv: engine closed")
	}
	if err := e.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(CommitMarkerKey)
	}); err != nil {
		return fmt.Errorf("clear commit marker: %w", err)
	}
	e.interrupted = false
	return nil
}

func (e *Engine) Begin(ctx context.Context, writable bool) (kv.Txn, error) {
	if e.db == nil {
		return nil, errors.New("badgerkv: engine closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := &txn{
		ctx:      ctx,
		e:        e,
		snap:     e.db.NewTransaction(false),
		writable: writable,
		specs:    make(map[string]*kv.TableSpec),
	}
	if writable {
		t.writes = btree.NewG(32, writeLess)
	}
	return t, nil
}

func (e *Engine) Sync() error {
	if e.db == nil {
		return nil
	}
	return e.db.Sync()
}

func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// write is one pending overlay entry; deleted marks a tombstone.
type write struct {
	key     []byte
	value   []byte
	deleted bool
}

func writeLess(a, b write) bool { return bytes.Compare(a.key, b.key) < 0 }

type txn struct {
	ctx      context.Context
	e        *Engine
	snap     *badger.Txn
	writes   *btree.BTreeG[write] // nil for read transactions
	writable bool
	done     bool

	// specs caches catalog lookups made through this transaction. A nil
	// entry records a table known to be absent.
	specs map[string]*kv.TableSpec
}

func (t *txn) Writable() bool { return t.writable }

func (t *txn) check(write bool) error {
	if t.done {
		return kv.ErrTxnDone
	}
	if write && !t.writable {
		return kv.ErrReadOnly
	}
	return t.ctx.Err()
}

// get reads key through the overlay. Absent keys yield badger.ErrKeyNotFound.
func (t *txn) get(key []byte) ([]byte, error) {
	if t.writes != nil {
		if w, ok := t.writes.Get(write{key: key}); ok {
			if w.deleted {
				return nil, badger.ErrKeyNotFound
			}
			return bytes.Clone(w.value), nil
		}
	}
	item, err := t.snap.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *txn) set(key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	t.writes.ReplaceOrInsert(write{key: key, value: bytes.Clone(value)})
}

func (t *txn) del(key []byte) {
	t.writes.ReplaceOrInsert(write{key: key, deleted: true})
}

// scan calls fn with every live key under prefix from start on, in key
// order, merging the overlay over the snapshot. fn gets copies and stops the
// scan by returning false. Values are only read when values is set.
func (t *txn) scan(prefix, start []byte, values bool, fn func(key, value []byte) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values
	it := t.snap.NewIterator(opts)
	defer it.Close()
	it.Seek(start)

	var err error
	// base emits snapshot keys below limit, or all remaining ones when limit
	// is nil.
	base := func(limit []byte) bool {
		for ; it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if limit != nil && bytes.Compare(item.Key(), limit) >= 0 {
				return true
			}
			var v []byte
			if values {
				if v, err = item.ValueCopy(nil); err != nil {
					return false
				}
			}
			if !fn(item.KeyCopy(nil), v) {
				return false
			}
		}
		return true
	}

	more := true
	if t.writes != nil {
		t.writes.AscendGreaterOrEqual(write{key: start}, func(w write) bool {
			if !bytes.HasPrefix(w.key, prefix) {
				return false
			}
			if more = base(w.key); !more {
				return false
			}
			if it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), w.key) {
				it.Next()
			}
			if w.deleted {
				return true
			}
			more = fn(bytes.Clone(w.key), bytes.Clone(w.value))
			return more
		})
	}
	if more {
		base(nil)
	}
	return err
}

func catalogKey(name string) []byte {
	return append([]byte{catalogTag}, name...)
}

func tablePrefix(name string) []byte {
	p := make([]byte, 0, len(name)+2)
	p = append(p, dataTag)
	p = append(p, name...)
	return append(p, 0x00)
}

func (t *txn) spec(name string) (*kv.TableSpec, error) {
	if s, ok := t.specs[name]; ok {
		if s == nil {
			return nil, fmt.Errorf("%s: %w", name, kv.ErrNoTable)
		}
		return s, nil
	}
	flags, err := t.get(catalogKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		t.specs[name] = nil
		return nil, fmt.Errorf("%s: %w", name, kv.ErrNoTable)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", name, err)
	}
	s := &kv.TableSpec{Name: name, Dup: len(flags) > 0 && flags[0]&flagDup != 0}
	t.specs[name] = s
	return s, nil
}

func (t *txn) CreateTable(spec kv.TableSpec) error {
	if err := t.check(true); err != nil {
		return err
	}
	if spec.Name == "" || bytes.IndexByte([]byte(spec.Name), 0x00) >= 0 {
		return fmt.Errorf("badgerkv: invalid table name %q", spec.Name)
	}
	if s, err := t.spec(spec.Name); err == nil {
		if s.Dup != spec.Dup {
			return fmt.Errorf("badgerkv: table %s exists with dup=%v", spec.Name, s.Dup)
		}
		return nil
	}
	var flags byte
	if spec.Dup {
		flags |= flagDup
	}
	t.set(catalogKey(spec.Name), []byte{flags})
	s := spec
	t.specs[spec.Name] = &s
	return nil
}

func (t *txn) DropTable(name string) error {
	if err := t.check(true); err != nil {
		return err
	}
	if _, err := t.spec(name); errors.Is(err, kv.ErrNoTable) {
		return nil
	} else if err != nil {
		return err
	}
	if err := t.deletePrefix(tablePrefix(name)); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	t.del(catalogKey(name))
	t.specs[name] = nil
	return nil
}

// deletePrefix removes every key under prefix. Keys are collected first
// because the overlay cannot change while it is being walked.
func (t *txn) deletePrefix(prefix []byte) error {
	var keys [][]byte
	err := t.scan(prefix, prefix, false, func(k, _ []byte) bool {
		keys = append(keys, k)
		return true
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		t.del(k)
	}
	return nil
}

func (t *txn) HasTable(name string) (bool, error) {
	if err := t.check(false); err != nil {
		return false, err
	}
	_, err := t.spec(name)
	if errors.Is(err, kv.ErrNoTable) {
		return false, nil
	}
	return err == nil, err
}

func (t *txn) Get(table string, key []byte) ([]byte, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	s, err := t.spec(table)
	if err != nil {
		return nil, err
	}
	if !s.Dup {
		v, err := t.get(append(tablePrefix(table), key...))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, kv.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", table, err)
		}
		return v, nil
	}

	var (
		first []byte
		found bool
	)
	prefix := dupKeyPrefix(table, key)
	err = t.scan(prefix, prefix, true, func(_, v []byte) bool {
		first, found = v, true
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	if !found {
		return nil, kv.ErrNotFound
	}
	return first, nil
}

func dupKeyPrefix(table string, key []byte) []byte {
	p := tablePrefix(table)
	p = append(p, key...)
	return append(p, 0x00)
}

func (t *txn) Put(table string, key, value []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	s, err := t.spec(table)
	if err != nil {
		return err
	}
	k := append(tablePrefix(table), key...)
	if s.Dup {
		if bytes.IndexByte(key, 0x00) >= 0 {
			return fmt.Errorf("put %s: duplicate-table key contains 0x00", table)
		}
		k = append(append(k, 0x00), value...)
	}
	t.set(k, value)
	return nil
}

func (t *txn) Delete(table string, key []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	s, err := t.spec(table)
	if err != nil {
		return err
	}
	if s.Dup {
		if err := t.deletePrefix(dupKeyPrefix(table, key)); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
		return nil
	}
	t.del(append(tablePrefix(table), key...))
	return nil
}

func (t *txn) DeleteValue(table string, key, value []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	s, err := t.spec(table)
	if err != nil {
		return err
	}
	k := append(tablePrefix(table), key...)
	if s.Dup {
		k = append(append(k, 0x00), value...)
	} else {
		// unique tables hold one value; remove it only if it matches
		cur, err := t.Get(table, key)
		if errors.Is(err, kv.ErrNotFound) || (err == nil && !bytes.Equal(cur, value)) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	t.del(k)
	return nil
}

func (t *txn) Count(table string) (int, error) {
	if err := t.check(false); err != nil {
		return 0, err
	}
	if _, err := t.spec(table); err != nil {
		return 0, err
	}
	prefix := tablePrefix(table)
	n := 0
	err := t.scan(prefix, prefix, false, func(_, _ []byte) bool {
		n++
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (t *txn) Cursor(table string, opts kv.CursorOptions) kv.Cursor {
	if err := t.check(false); err != nil {
		return kv.ErrCursor(err)
	}
	s, err := t.spec(table)
	if err != nil {
		return kv.ErrCursor(err)
	}

	tp := tablePrefix(table)
	scan := tp
	exact := opts.Key
	switch {
	case opts.Key != nil && s.Dup:
		scan = dupKeyPrefix(table, opts.Key)
	case opts.Key != nil:
		scan = append(append([]byte(nil), tp...), opts.Key...)
	case len(opts.Prefix) > 0:
		scan = append(append([]byte(nil), tp...), opts.Prefix...)
	}

	fetch := func(after *kv.Pair, limit int) ([]kv.Pair, error) {
		if err := t.check(false); err != nil {
			return nil, err
		}
		start := scan
		if after != nil {
			last := append(append([]byte(nil), tp...), after.Key...)
			if s.Dup {
				last = append(append(last, 0x00), after.Value...)
			}
			start = append(last, 0x00)
		}

		page := make([]kv.Pair, 0, limit)
		var bad error
		err := t.scan(scan, start, true, func(full, val []byte) bool {
			rest := full[len(tp):]
			key := rest
			if s.Dup {
				i := bytes.IndexByte(rest, 0x00)
				if i < 0 {
					bad = fmt.Errorf("scan %s: malformed duplicate key", table)
					return false
				}
				key = rest[:i]
			}
			if exact != nil && !bytes.Equal(key, exact) {
				return s.Dup
			}
			page = append(page, kv.Pair{Key: key, Value: val})
			return len(page) < limit
		})
		if err == nil {
			err = bad
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		return page, nil
	}
	return kv.NewPagedCursor(fetch, opts.PageSize, nil)
}

// Commit writes the overlay. A commit Badger refuses as too big for one
// transaction is retried through commitInSteps.
func (t *txn) Commit() error {
	if t.done {
		return kv.ErrTxnDone
	}
	t.done = true
	defer t.snap.Discard()
	if !t.writable || t.writes.Len() == 0 {
		return nil
	}
	if t.e.db == nil {
		return errors.New("badgerkv: engine closed")
	}

	err := t.commitAtomic()
	if errors.Is(err, badger.ErrTxnTooBig) {
		t.e.log.Debug("badger: commit exceeds one transaction; writing in steps", "writes", t.writes.Len())
		err = t.commitInSteps()
	}
	t.writes = nil
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *txn) commitAtomic() error {
	wtx := t.e.db.NewTransaction(true)
	defer wtx.Discard()

	var err error
	t.writes.Ascend(func(w write) bool {
		if w.deleted {
			err = wtx.Delete(w.key)
		} else {
			err = wtx.Set(w.key, w.value)
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	return wtx.Commit()
}

// commitInSteps streams the overlay through a WriteBatch, which splits it
// into as many Badger transactions as needed. The commit marker is set
// before the first write and cleared after the last, so a crash in between
// is visible to the next Open.
func (t *txn) commitInSteps() error {
	db := t.e.db
	if err := db.Update(func(tx *badger.Txn) error {
		return tx.Set(CommitMarkerKey, []byte{})
	}); err != nil {
		return fmt.Errorf("set commit marker: %w", err)
	}

	wb := db.NewWriteBatch()
	defer wb.Cancel()
	var err error
	t.writes.Ascend(func(w write) bool {
		if w.deleted {
			err = wb.Delete(w.key)
		} else {
			err = wb.Set(w.key, w.value)
		}
		return err == nil
	})
	if err == nil {
		err = wb.Flush()
	}
	if err != nil {
		t.e.interrupted = true
		return err
	}

	if err := db.Update(func(tx *badger.Txn) error {
		return tx.Delete(CommitMarkerKey)
	}); err != nil {
		t.e.interrupted = true
		return fmt.Errorf("clear commit marker: %w", err)
	}
	return nil
}

func (t *txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.writes = nil
	t.snap.Discard()
	return nil
}

// badgerLogger routes Badger's internal logging through slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
