package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Overlay(t *testing.T) {
	data := []byte(`
backend: badger
badger:
  sync_writes: true
  mem_table_mb: 16
sqlite:
  synchronous: FULL
undo_limit: 50
verify_references: true
log_level: debug
surname_locale: sv
id_prefixes:
  person: "P%05d"
  note: NOTE
`)
	cfg, err := Parse("kinstore.yaml", data)
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Backend)
	assert.True(t, cfg.Badger.SyncWrites)
	assert.Equal(t, 16, cfg.Badger.MemTableMB)
	assert.Equal(t, "FULL", cfg.SQLite.Synchronous)
	assert.Equal(t, "sqlite3", cfg.SQLite.Driver, "unset keys keep their default")
	assert.Equal(t, 5000, cfg.SQLite.BusyTimeoutMS)
	assert.Equal(t, 50, cfg.UndoLimit)
	assert.True(t, cfg.VerifyReferences)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, map[string]string{"person": "P%05d", "note": "NOTE"}, cfg.IDPrefixes)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse("kinstore.yaml", []byte("\n  \n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown backend", "backend: lmdb\n", "backend"},
		{"unknown key", "undo_limt: 5\n", "undo_limt"},
		{"nested unknown key", "sqlite:\n  drvier: sqlite\n", "drvier"},
		{"bad driver", "sqlite:\n  driver: postgres\n", "driver"},
		{"negative timeout", "sqlite:\n  busy_timeout_ms: -1\n", "busy_timeout_ms"},
		{"zero undo limit", "undo_limit: 0\n", "undo_limit"},
		{"wrong type", "verify_references: yes please\n", "verify_references"},
		{"unknown kind prefix", "id_prefixes:\n  citation: C%04d\n", "citation"},
		{"bad level", "log_level: loud\n", "log_level"},
		{"tiny memtable", "badger:\n  mem_table_mb: 1\n", "mem_table_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("kinstore.yaml", []byte(tt.yaml))
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "kinstore.yaml", ve.File)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse("kinstore.yaml", []byte("backend: [unterminated\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLevel_FallsBackToInfo(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	cfg.LogLevel = "warn"
	assert.Equal(t, slog.LevelWarn, cfg.Level())
}

func TestStoreOptions_OpenStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`
backend: badger
badger:
  mem_table_mb: 8
undo_limit: 3
id_prefixes:
  person: "X%d"
`), 0o644))

	cfg, err := LoadDir(dir)
	require.NoError(t, err)

	ctx := context.Background()
	s, err := store.Open(ctx, dir, cfg.StoreOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	assert.Equal(t, store.BackendBadger, s.Backend())
	assert.Equal(t, "X%d", s.IDPrefix(record.KindPerson))

	for range 5 {
		txn, err := s.Begin(ctx, "add")
		require.NoError(t, err)
		_, err = s.AddNote(ctx, txn, &record.Note{Text: "n"})
		require.NoError(t, err)
		_, err = txn.Commit()
		require.NoError(t, err)
	}
	assert.Len(t, s.UndoHistory(), 3)
}
