// Package fixture loads genealogical records from YAML files and commits
// them to a store. Fixtures seed test stores, scenario runs and the
// "kinstore load" command.
//
// A fixture lists records by kind. Every key besides kind is a field of the
// record, named as in its JSON form:
//
//	description: Lovelace household
//	batch: false
//	records:
//	  - kind: person
//	    handle: ada
//	    id: I0001
//	    primary_name: {first: Ada, surname: Lovelace}
//	    families: [f1]
//	  - kind: family
//	    handle: f1
//	    mother: ada
package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

// File is a parsed fixture.
type File struct {
	// Description says what the fixture contains.
	Description string `yaml:"description"`

	// Batch commits the records in one batch transaction instead of an
	// undoable interactive one.
	Batch bool `yaml:"batch"`

	// Records are committed in order.
	Records []Record `yaml:"records"`
}

// Record is one record of a fixture: its kind plus the record's fields.
type Record struct {
	Kind   record.Kind    `yaml:"kind"`
	Fields map[string]any `yaml:",inline"`
}

// Build converts the fields into the record struct of the kind. Unknown
// field names are rejected.
func (r Record) Build() (record.Record, error) {
	rec, err := record.New(r.Kind)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Kind, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return nil, fmt.Errorf("%s %v: %w", r.Kind, r.Fields["handle"], err)
	}
	return rec, nil
}

// Load reads and parses a fixture file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a fixture with strict field checking.
func Parse(data []byte) (*File, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(f.Records) == 0 {
		return nil, errors.New("records list is required and must be non-empty")
	}
	for i, r := range f.Records {
		if !r.Kind.Valid() {
			return nil, fmt.Errorf("records[%d]: kind is required", i)
		}
	}
	return &f, nil
}

// Build converts every record of the fixture.
func (f *File) Build() ([]record.Record, error) {
	out := make([]record.Record, 0, len(f.Records))
	for i, r := range f.Records {
		rec, err := r.Build()
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Apply commits the fixture's records to s in a single transaction and
// returns the transaction's change list. Records without a handle or id get
// fresh ones and every change time is set to the commit time. Any failure
// rolls the whole fixture back.
func Apply(ctx context.Context, s *store.Store, f *File, desc string) ([]store.Change, error) {
	recs, err := f.Build()
	if err != nil {
		return nil, err
	}
	var opts []store.BeginOption
	if f.Batch {
		opts = append(opts, store.Batch())
	}
	txn, err := s.Begin(ctx, desc, opts...)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if _, err := s.Add(ctx, txn, rec); err != nil {
			if !store.IsTransactionAbort(err) {
				txn.Abort()
			}
			return nil, fmt.Errorf("apply %s %s: %w", rec.Kind(), rec.Head().Handle, err)
		}
	}
	return txn.Commit()
}
