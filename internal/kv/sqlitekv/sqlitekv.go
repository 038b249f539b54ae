// Package sqlitekv implements kv.Engine on SQLite.
//
// Each kv table is a WITHOUT ROWID table of (k BLOB, v BLOB). Unique tables
// key on k alone; duplicate tables key on (k, v), which gives the sorted
// duplicate semantics for free. BLOB comparison in SQLite is memcmp, so
// iteration order matches the byte order the Badger backend uses.
//
// The database runs in WAL mode. Writable transactions hold one pooled
// connection; read transactions issue each page query on whatever
// connection is free, so an open read cursor never blocks a writer.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/kinstore/internal/kv"
)

// Driver names accepted by Options.Driver.
const (
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverModernc = "sqlite"  // modernc.org/sqlite (pure Go)
)

// Options configures Open.
type Options struct {
	// Driver selects the database/sql driver. Defaults to DriverMattn.
	Driver string

	// Synchronous is the SQLite synchronous pragma (OFF, NORMAL, FULL).
	// Defaults to NORMAL.
	Synchronous string

	// BusyTimeout bounds how long a connection waits on a lock.
	// Defaults to 5 seconds.
	BusyTimeout time.Duration

	// MaxOpenConns caps the connection pool. Defaults to 4.
	MaxOpenConns int

	Logger *slog.Logger
}

// Engine is a SQLite-backed kv.Engine.
type Engine struct {
	db     *sql.DB
	path   string
	driver string
	log    *slog.Logger
}

var _ kv.Engine = (*Engine)(nil)

// Open creates or opens the SQLite database file at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - the configured synchronous mode (NORMAL unless overridden)
//   - a busy timeout for lock contention
//   - immediate write locks, so a writable transaction never upgrades
//     a shared lock mid-flight
func Open(ctx context.Context, path string, opts Options) (*Engine, error) {
	if opts.Driver == "" {
		opts.Driver = DriverMattn
	}
	if opts.Synchronous == "" {
		opts.Synchronous = "NORMAL"
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dsn, err := buildDSN(path, opts)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(2)

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read journal_mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		db.Close()
		return nil, fmt.Errorf("journal_mode is %q, want wal", mode)
	}

	opts.Logger.Debug("sqlite engine opened", "path", path, "driver", opts.Driver, "synchronous", opts.Synchronous)
	return &Engine{db: db, path: path, driver: opts.Driver, log: opts.Logger}, nil
}

// buildDSN encodes the connection pragmas in the form each driver expects,
// so they apply to every pooled connection rather than only the first.
func buildDSN(path string, opts Options) (string, error) {
	sync := strings.ToUpper(opts.Synchronous)
	switch sync {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return "", fmt.Errorf("invalid synchronous mode %q", opts.Synchronous)
	}
	busy := opts.BusyTimeout.Milliseconds()

	q := url.Values{}
	switch opts.Driver {
	case DriverMattn:
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", sync)
		q.Set("_busy_timeout", fmt.Sprint(busy))
		q.Set("_txlock", "immediate")
	case DriverModernc:
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", fmt.Sprintf("synchronous(%s)", sync))
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
		q.Set("_txlock", "immediate")
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", opts.Driver)
	}
	return "file:" + path + "?" + q.Encode(), nil
}

func (e *Engine) Backend() string { return "sqlite" }

// DB returns the underlying sql.DB for diagnostics.
// Use with caution - all kv access should go through transactions.
func (e *Engine) DB() *sql.DB { return e.db }

// Begin starts a transaction. Writable transactions take the write lock
// immediately.
func (e *Engine) Begin(ctx context.Context, writable bool) (kv.Txn, error) {
	if e.db == nil {
		return nil, errors.New("sqlitekv: engine closed")
	}
	if !writable {
		return &txn{ctx: ctx, q: e.db}, nil
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &txn{ctx: ctx, q: tx, tx: tx}, nil
}

// Sync checkpoints the WAL into the main database file.
func (e *Engine) Sync() error {
	if e.db == nil {
		return nil
	}
	if _, err := e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Close closes the database. Safe to call more than once.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txn struct {
	ctx  context.Context
	q    queryer
	tx   *sql.Tx
	done bool
}

func (t *txn) Writable() bool { return t.tx != nil }

func (t *txn) check(write bool) error {
	if t.done {
		return kv.ErrTxnDone
	}
	if write && t.tx == nil {
		return kv.ErrReadOnly
	}
	return nil
}

func (t *txn) CreateTable(spec kv.TableSpec) error {
	if err := t.check(true); err != nil {
		return err
	}
	name, err := quote(spec.Name)
	if err != nil {
		return err
	}
	pk := "PRIMARY KEY (k)"
	if spec.Dup {
		pk = "PRIMARY KEY (k, v)"
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (k BLOB NOT NULL, v BLOB NOT NULL, %s) WITHOUT ROWID", name, pk)
	if _, err := t.q.ExecContext(t.ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

func (t *txn) DropTable(table string) error {
	if err := t.check(true); err != nil {
		return err
	}
	name, err := quote(table)
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(t.ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

func (t *txn) HasTable(table string) (bool, error) {
	if err := t.check(false); err != nil {
		return false, err
	}
	var one int
	err := t.q.QueryRowContext(t.ctx,
		"SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return true, nil
}

func (t *txn) Get(table string, key []byte) ([]byte, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	name, err := quote(table)
	if err != nil {
		return nil, err
	}
	var v []byte
	err = t.q.QueryRowContext(t.ctx,
		"SELECT v FROM "+name+" WHERE k = ? ORDER BY v LIMIT 1", nz(key)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, wrap("get", table, err)
	}
	return v, nil
}

func (t *txn) Put(table string, key, value []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	name, err := quote(table)
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(t.ctx,
		"INSERT OR REPLACE INTO "+name+" (k, v) VALUES (?, ?)", nz(key), nz(value)); err != nil {
		return wrap("put", table, err)
	}
	return nil
}

func (t *txn) Delete(table string, key []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	name, err := quote(table)
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(t.ctx, "DELETE FROM "+name+" WHERE k = ?", nz(key)); err != nil {
		return wrap("delete", table, err)
	}
	return nil
}

func (t *txn) DeleteValue(table string, key, value []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	name, err := quote(table)
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(t.ctx,
		"DELETE FROM "+name+" WHERE k = ? AND v = ?", nz(key), nz(value)); err != nil {
		return wrap("delete value", table, err)
	}
	return nil
}

func (t *txn) Count(table string) (int, error) {
	if err := t.check(false); err != nil {
		return 0, err
	}
	name, err := quote(table)
	if err != nil {
		return 0, err
	}
	var n int
	if err := t.q.QueryRowContext(t.ctx, "SELECT COUNT(*) FROM "+name).Scan(&n); err != nil {
		return 0, wrap("count", table, err)
	}
	return n, nil
}

func (t *txn) Cursor(table string, opts kv.CursorOptions) kv.Cursor {
	if err := t.check(false); err != nil {
		return kv.ErrCursor(err)
	}
	name, err := quote(table)
	if err != nil {
		return kv.ErrCursor(err)
	}

	var where []string
	var base []any
	switch {
	case opts.Key != nil:
		where = append(where, "k = ?")
		base = append(base, nz(opts.Key))
	case len(opts.Prefix) > 0:
		where = append(where, "k >= ?")
		base = append(base, opts.Prefix)
		if end := kv.PrefixEnd(opts.Prefix); end != nil {
			where = append(where, "k < ?")
			base = append(base, end)
		}
	}

	fetch := func(after *kv.Pair, limit int) ([]kv.Pair, error) {
		if t.done {
			return nil, kv.ErrTxnDone
		}
		conds := append([]string(nil), where...)
		args := append([]any(nil), base...)
		if after != nil {
			conds = append(conds, "(k, v) > (?, ?)")
			args = append(args, nz(after.Key), nz(after.Value))
		}
		query := "SELECT k, v FROM " + name
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += " ORDER BY k, v LIMIT ?"
		args = append(args, limit)

		rows, err := t.q.QueryContext(t.ctx, query, args...)
		if err != nil {
			return nil, wrap("scan", table, err)
		}
		defer rows.Close()

		page := make([]kv.Pair, 0, limit)
		for rows.Next() {
			var p kv.Pair
			if err := rows.Scan(&p.Key, &p.Value); err != nil {
				return nil, fmt.Errorf("scan %s row: %w", table, err)
			}
			page = append(page, p)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate %s: %w", table, err)
		}
		return page, nil
	}
	return kv.NewPagedCursor(fetch, opts.PageSize, nil)
}

func (t *txn) Commit() error {
	if t.done {
		return kv.ErrTxnDone
	}
	t.done = true
	if t.tx == nil {
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.tx == nil {
		return nil
	}
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// quote validates a table name and returns it as a quoted identifier.
// Names are restricted to [a-z0-9_] so they never need escaping.
func quote(table string) (string, error) {
	if table == "" {
		return "", errors.New("sqlitekv: empty table name")
	}
	for _, r := range table {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return "", fmt.Errorf("sqlitekv: invalid table name %q", table)
		}
	}
	return `"` + table + `"`, nil
}

// nz maps nil to an empty blob; a nil []byte would bind as NULL.
func nz(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func wrap(op, table string, err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%s %s: %w", op, table, kv.ErrNoTable)
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}
