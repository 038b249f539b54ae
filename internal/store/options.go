package store

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Backend names accepted by WithBackend.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

type options struct {
	backend      string
	sqliteDriver string
	synchronous  string
	busyTimeout  time.Duration
	syncWrites   bool
	inMemory     bool
	memTableSize int64

	create      bool
	readOnly    bool
	forceUnlock bool

	undoLimit        int
	verifyReferences bool
	idPrefixes       map[string]string
	surnameLocale    string

	logger     *slog.Logger
	registerer prometheus.Registerer
	handles    HandleGenerator
	now        func() time.Time
}

func defaultOptions() options {
	return options{
		create:    true,
		undoLimit: defaultUndoLimit,
		logger:    slog.Default(),
		handles:   UUIDv7Generator{},
		now:       time.Now,
	}
}

// Option configures Open.
type Option func(*options)

// WithBackend selects the storage engine (BackendSQLite or BackendBadger).
// When unset, an existing store keeps its backend and a new one uses SQLite.
func WithBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

// WithSQLiteDriver selects the database/sql driver for the SQLite backend:
// "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go).
func WithSQLiteDriver(driver string) Option {
	return func(o *options) { o.sqliteDriver = driver }
}

// WithSynchronous sets the SQLite synchronous pragma.
func WithSynchronous(mode string) Option {
	return func(o *options) { o.synchronous = mode }
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithSyncWrites makes every Badger commit wait for an fsync.
func WithSyncWrites(on bool) Option {
	return func(o *options) { o.syncWrites = on }
}

// WithMemTableSize sets the Badger memtable size in bytes. Commits larger
// than about 15% of it are written in steps rather than atomically.
func WithMemTableSize(bytes int64) Option {
	return func(o *options) { o.memTableSize = bytes }
}

// WithInMemory keeps a Badger store entirely in memory. Used by tests and
// scenario runs.
func WithInMemory() Option {
	return func(o *options) {
		o.backend = BackendBadger
		o.inMemory = true
	}
}

// WithCreate controls whether Open may create a new store. Defaults to true.
func WithCreate(create bool) Option {
	return func(o *options) { o.create = create }
}

// WithReadOnly opens the store for reading only. No lock file is taken and
// no upgrade is attempted.
func WithReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// WithForceUnlock removes a stale lock file left by a crashed process.
func WithForceUnlock() Option {
	return func(o *options) { o.forceUnlock = true }
}

// WithUndoLimit bounds the undo history. Non-positive values keep the default.
func WithUndoLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.undoLimit = n
		}
	}
}

// WithVerifyReferences re-reads the reference rows after every interactive
// commit and fails the commit if they disagree with the record.
func WithVerifyReferences(on bool) Option {
	return func(o *options) { o.verifyReferences = on }
}

// WithIDPrefixes overrides the printf patterns used for new human ids,
// keyed by kind name ("person": "I%04d").
func WithIDPrefixes(prefixes map[string]string) Option {
	return func(o *options) { o.idPrefixes = prefixes }
}

// WithSurnameLocale sets the collation locale of the surname list (BCP 47).
func WithSurnameLocale(tag string) Option {
	return func(o *options) { o.surnameLocale = tag }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegisterer registers the store's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHandleGenerator replaces the UUIDv7 handle generator.
func WithHandleGenerator(g HandleGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.handles = g
		}
	}
}

// WithClock replaces time.Now for change timestamps and undo history.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
