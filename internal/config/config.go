// Package config loads kinstore.yaml, the optional settings file of a
// family tree directory.
//
// The file is checked against an embedded CUE schema before it is decoded,
// so a misspelt key or an out-of-range value is reported with its path
// instead of being silently ignored:
//
//	backend: sqlite
//	sqlite:
//	  driver: sqlite
//	  synchronous: FULL
//	undo_limit: 500
//	id_prefixes:
//	  person: "I%05d"
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/kinstore/internal/store"
)

// FileName is the name of the settings file inside a store directory.
const FileName = "kinstore.yaml"

//go:embed schema.cue
var schemaSource []byte

// Config holds every setting of a store.
type Config struct {
	Backend  string `yaml:"backend"`
	InMemory bool   `yaml:"in_memory"`

	SQLite SQLite `yaml:"sqlite"`
	Badger Badger `yaml:"badger"`

	UndoLimit        int               `yaml:"undo_limit"`
	VerifyReferences bool              `yaml:"verify_references"`
	SurnameLocale    string            `yaml:"surname_locale"`
	LogLevel         string            `yaml:"log_level"`
	IDPrefixes       map[string]string `yaml:"id_prefixes"`
}

// SQLite holds the settings of the SQLite backend.
type SQLite struct {
	Driver        string `yaml:"driver"`
	Synchronous   string `yaml:"synchronous"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

// Badger holds the settings of the Badger backend.
type Badger struct {
	SyncWrites bool `yaml:"sync_writes"`
	// MemTableMB is the memtable size in MiB. Zero keeps Badger's default.
	MemTableMB int `yaml:"mem_table_mb"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	return &Config{
		SQLite: SQLite{
			Driver:        "sqlite3",
			Synchronous:   "NORMAL",
			BusyTimeoutMS: 5000,
		},
		UndoLimit: 1000,
		LogLevel:  "info",
	}
}

// Load reads path, validates it and overlays it on Default. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(path, data)
}

// LoadDir loads FileName from a store directory.
func LoadDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Parse validates data against the schema and decodes it over the defaults.
// name is only used in error messages.
func Parse(name string, data []byte) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := validate(name, data); err != nil {
		return nil, err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return cfg, nil
}

// validate unifies the YAML document with #Config.
func validate(name string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{File: name, Details: cueerrors.Details(err, nil)}
	}
	return nil
}

// ValidationError reports a settings file that does not match the schema.
type ValidationError struct {
	File    string
	Details string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.File, e.Details)
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// StoreOptions translates the settings into store.Open options.
func (c *Config) StoreOptions() []store.Option {
	opts := []store.Option{
		store.WithSQLiteDriver(c.SQLite.Driver),
		store.WithSynchronous(c.SQLite.Synchronous),
		store.WithBusyTimeout(time.Duration(c.SQLite.BusyTimeoutMS) * time.Millisecond),
		store.WithSyncWrites(c.Badger.SyncWrites),
		store.WithUndoLimit(c.UndoLimit),
		store.WithVerifyReferences(c.VerifyReferences),
	}
	if c.Backend != "" {
		opts = append(opts, store.WithBackend(c.Backend))
	}
	if c.Badger.MemTableMB > 0 {
		opts = append(opts, store.WithMemTableSize(int64(c.Badger.MemTableMB)<<20))
	}
	if c.InMemory {
		opts = append(opts, store.WithInMemory())
	}
	if len(c.IDPrefixes) > 0 {
		opts = append(opts, store.WithIDPrefixes(c.IDPrefixes))
	}
	if c.SurnameLocale != "" {
		opts = append(opts, store.WithSurnameLocale(c.SurnameLocale))
	}
	return opts
}
