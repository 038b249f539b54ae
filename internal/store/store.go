package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/kv/badgerkv"
	"github.com/roach88/kinstore/internal/kv/sqlitekv"
	"github.com/roach88/kinstore/internal/record"
)

const (
	sqliteFileName = "kinstore.db"
	badgerDirName  = "badger"
)

// Store is an open object store. It is not safe for concurrent use; see the
// package documentation.
type Store struct {
	dir     string
	backend string
	engine  kv.Engine
	lock    *lockFile
	log     *slog.Logger
	metrics *metrics
	opts    options

	version int
	closed  bool

	active        *Transaction
	undo          []*undoFrame
	redo          []*undoFrame
	abortPossible bool
	changed       bool

	// detached names the tables dropped by the open batch transaction.
	detached map[string]bool

	surnames    *surnameList
	customTypes map[record.TypeSet][]string
	genderStats genderStats
	idPatterns  map[record.Kind]string
	idCounters  map[record.Kind]int
}

// Open opens the store in dir, creating it when absent (unless
// WithCreate(false) is given).
//
// Before any table is exposed, Open checks the stored format version:
// versions outside [MinSupportedVersion, CurrentVersion] fail with a
// version error, and older supported versions are upgraded in place. A store
// whose derived tables are missing is repaired by a full rebuild.
func Open(ctx context.Context, dir string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backend, exists, err := detectBackend(dir, o)
	if err != nil {
		return nil, err
	}
	if !exists && !o.inMemory && (!o.create || o.readOnly) {
		return nil, fmt.Errorf("no store in %s: %w", dir, fs.ErrNotExist)
	}

	var lock *lockFile
	if !o.inMemory {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		if !o.readOnly {
			if lock, err = acquireLock(dir, o.forceUnlock); err != nil {
				return nil, err
			}
		}
	}

	m, err := newMetrics(o.registerer)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	engine, err := openEngine(ctx, dir, backend, o)
	if err != nil {
		lock.release()
		return nil, err
	}

	s := &Store{
		dir:           dir,
		backend:       backend,
		engine:        engine,
		lock:          lock,
		log:           o.logger,
		metrics:       m,
		opts:          o,
		abortPossible: true,
		surnames:      newSurnameList(o.surnameLocale),
	}
	if err := s.init(ctx); err != nil {
		engine.Close()
		lock.release()
		return nil, err
	}

	s.log.Info("store opened",
		"dir", dir,
		"backend", backend,
		"version", s.version,
		"read_only", o.readOnly,
	)
	return s, nil
}

// detectBackend picks the backend of an existing store, or the configured
// one for a new store.
func detectBackend(dir string, o options) (backend string, exists bool, err error) {
	switch o.backend {
	case "", BackendSQLite, BackendBadger:
	default:
		return "", false, fmt.Errorf("unknown backend %q", o.backend)
	}
	if o.inMemory {
		return BackendBadger, false, nil
	}

	hasSQLite := pathExists(filepath.Join(dir, sqliteFileName))
	hasBadger := pathExists(filepath.Join(dir, badgerDirName))

	var found string
	switch {
	case hasSQLite && hasBadger:
		return "", true, fmt.Errorf("store directory %s holds both sqlite and badger data", dir)
	case hasSQLite:
		found = BackendSQLite
	case hasBadger:
		found = BackendBadger
	}

	if found != "" {
		if o.backend != "" && o.backend != found {
			return "", true, fmt.Errorf("store in %s uses the %s backend, not %s", dir, found, o.backend)
		}
		return found, true, nil
	}
	if o.backend == "" {
		return BackendSQLite, false, nil
	}
	return o.backend, false, nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func openEngine(ctx context.Context, dir, backend string, o options) (kv.Engine, error) {
	switch backend {
	case BackendSQLite:
		return sqlitekv.Open(ctx, filepath.Join(dir, sqliteFileName), sqlitekv.Options{
			Driver:      o.sqliteDriver,
			Synchronous: o.synchronous,
			BusyTimeout: o.busyTimeout,
			Logger:      o.logger,
		})
	case BackendBadger:
		path := filepath.Join(dir, badgerDirName)
		if o.inMemory {
			path = ""
		}
		return badgerkv.Open(path, badgerkv.Options{
			SyncWrites:   o.syncWrites,
			InMemory:     o.inMemory,
			MemTableSize: o.memTableSize,
			Logger:       o.logger,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// init runs the version gate, creates or repairs tables and loads the
// in-memory caches, all inside one engine transaction.
func (s *Store) init(ctx context.Context) error {
	writable := !s.opts.readOnly
	tx, err := s.engine.Begin(ctx, writable)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer tx.Rollback()

	rec, _ := s.engine.(kv.Recoverer)
	interrupted := rec != nil && rec.Interrupted()

	initialised, err := tx.HasTable(tableMetadata)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	if !initialised {
		if !writable {
			return fmt.Errorf("open: store is not initialised: %w", ErrReadOnly)
		}
		if err := createTables(tx); err != nil {
			return err
		}
		if err := putMeta(tx, metaVersion, CurrentVersion); err != nil {
			return err
		}
		s.version = CurrentVersion
		s.log.Info("store created", "dir", s.dir, "backend", s.backend, "version", CurrentVersion)
	} else {
		if err := s.checkVersion(tx); err != nil {
			return err
		}
		if writable {
			if err := s.repairTables(tx, interrupted); err != nil {
				return err
			}
		} else if interrupted {
			s.log.Warn("an interrupted commit left derived tables unverified; open read-write to repair", "dir", s.dir)
		}
	}

	if err := s.loadCaches(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if interrupted && writable {
		if err := rec.Recovered(); err != nil {
			return fmt.Errorf("open: %w", err)
		}
	}
	return nil
}

func createTables(tx kv.Txn) error {
	for _, spec := range append(primaryTables(), secondaryTables()...) {
		if err := tx.CreateTable(spec); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// checkVersion is the version gate. It runs before any other table is read.
func (s *Store) checkVersion(tx kv.Txn) error {
	var v int
	found, err := getMeta(tx, metaVersion, &v)
	if err != nil {
		return fmt.Errorf("open: read version: %w", err)
	}
	if !found {
		return versionError(0)
	}
	if v > CurrentVersion || v < MinSupportedVersion {
		return versionError(v)
	}
	if v < CurrentVersion {
		if !tx.Writable() {
			return ErrNeedsUpgrade
		}
		if err := s.upgrade(tx, v); err != nil {
			return err
		}
		v = CurrentVersion
	}
	s.version = v
	return nil
}

// repairTables creates any missing primary table and rebuilds the derived
// tables if any of them is gone, or unconditionally after an interrupted
// engine commit.
func (s *Store) repairTables(tx kv.Txn, interrupted bool) error {
	for _, spec := range primaryTables() {
		if err := tx.CreateTable(spec); err != nil {
			return fmt.Errorf("open: %w", err)
		}
	}
	var missing []string
	for _, spec := range secondaryTables() {
		ok, err := tx.HasTable(spec.Name)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		if !ok {
			missing = append(missing, spec.Name)
		}
	}
	switch {
	case interrupted:
		s.log.Warn("engine commit was interrupted; rebuilding derived tables")
	case len(missing) > 0:
		s.log.Warn("derived tables missing; rebuilding", "tables", missing)
	default:
		return nil
	}
	return s.rebuildSecondary(tx, nil)
}

// Close aborts any open transaction, flushes the engine, releases the lock
// file and closes every table. It is safe to call more than once.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	var errs []error
	if s.active != nil {
		s.log.Warn("closing store with an open transaction; aborting", "transaction", s.active.desc)
		errs = append(errs, s.active.Abort())
	}
	s.closed = true

	if !s.opts.readOnly {
		if err := s.engine.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync: %w", err))
		}
	}
	if err := s.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close engine: %w", err))
	}
	if err := s.lock.release(); err != nil {
		errs = append(errs, err)
	}
	s.log.Info("store closed", "dir", s.dir)
	return errors.Join(errs...)
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Backend returns the engine name ("sqlite" or "badger").
func (s *Store) Backend() string { return s.backend }

// Version returns the store format version.
func (s *Store) Version() int { return s.version }

// ReadOnly reports whether the store was opened read-only.
func (s *Store) ReadOnly() bool { return s.opts.readOnly }

// AbortPossible reports whether every transaction of this session has been
// reversible. It turns false for good once a batch transaction begins.
func (s *Store) AbortPossible() bool { return s.abortPossible }

// HasChanged reports whether any transaction committed in this session.
func (s *Store) HasChanged() bool { return s.changed }

// InTransaction reports whether a transaction is open.
func (s *Store) InTransaction() bool { return s.active != nil }

// reader returns a transaction for reads: the open transaction when there is
// one, so its writes are visible, otherwise a fresh read transaction that
// done releases.
func (s *Store) reader(ctx context.Context) (kv.Txn, func(), error) {
	if s.closed {
		return nil, nil, ErrClosed
	}
	if s.active != nil {
		return s.active.kv, func() {}, nil
	}
	tx, err := s.engine.Begin(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	return tx, func() { tx.Rollback() }, nil
}

// view runs fn against a read transaction from reader.
func (s *Store) view(ctx context.Context, fn func(tx kv.Txn) error) error {
	tx, done, err := s.reader(ctx)
	if err != nil {
		return err
	}
	defer done()
	return fn(tx)
}

// update runs fn inside the open transaction, or in a write transaction of
// its own that commits when fn succeeds.
func (s *Store) update(ctx context.Context, fn func(tx kv.Txn) error) error {
	if s.closed {
		return ErrClosed
	}
	if s.opts.readOnly {
		return ErrReadOnly
	}
	if s.active != nil {
		return fn(s.active.kv)
	}
	tx, err := s.engine.Begin(ctx, true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
