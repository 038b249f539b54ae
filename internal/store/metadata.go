package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/kinstore/internal/codec"
	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// Metadata keys.
const (
	metaVersion           = "version"
	metaResearcher        = "researcher"
	metaNameFormats       = "name_formats"
	metaDefaultPerson     = "default_person"
	metaMediaPath         = "media_path"
	metaBookmarksPrefix   = "bookmarks/"
	metaCustomTypesPrefix = "custom_types/"
	metaIDPrefixPrefix    = "id_prefix/"
)

// getMeta decodes the metadata value under key into v. found is false when
// the key is absent.
func getMeta(tx kv.Txn, key string, v any) (found bool, err error) {
	data, err := tx.Get(tableMetadata, []byte(key))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := codec.UnmarshalValue(data, v); err != nil {
		return true, fmt.Errorf("metadata %s: %w", key, err)
	}
	return true, nil
}

func putMeta(tx kv.Txn, key string, v any) error {
	data, err := codec.MarshalValue(v)
	if err != nil {
		return fmt.Errorf("metadata %s: %w", key, err)
	}
	if err := tx.Put(tableMetadata, []byte(key), data); err != nil {
		return fmt.Errorf("metadata %s: %w", key, err)
	}
	return nil
}

// loadCaches fills the in-memory state derived from metadata and indices.
func (s *Store) loadCaches(tx kv.Txn) error {
	if err := s.loadIDPatterns(tx); err != nil {
		return err
	}

	s.idCounters = make(map[record.Kind]int, len(record.Kinds()))
	for _, k := range record.Kinds() {
		n, err := tx.Count(primaryTable(k))
		if err != nil {
			return fmt.Errorf("open: count %s: %w", k, err)
		}
		s.idCounters[k] = n
	}

	g, err := loadGenderStats(tx)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	s.genderStats = g

	s.customTypes = make(map[record.TypeSet][]string)
	for _, ts := range record.TypeSets() {
		var names []string
		if _, err := getMeta(tx, metaCustomTypesPrefix+string(ts), &names); err != nil {
			return fmt.Errorf("open: %w", err)
		}
		if len(names) > 0 {
			s.customTypes[ts] = names
		}
	}

	ok, err := tx.HasTable(tableSurnames)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if !ok {
		return nil
	}
	names, err := scanSurnames(tx)
	if err != nil {
		return fmt.Errorf("open: surnames: %w", err)
	}
	s.surnames.set(names)
	return nil
}

// Researcher is the owner of the family tree.
type Researcher struct {
	Name     string `json:"name,omitempty" msgpack:"name"`
	Address  string `json:"address,omitempty" msgpack:"address"`
	Locality string `json:"locality,omitempty" msgpack:"locality"`
	City     string `json:"city,omitempty" msgpack:"city"`
	State    string `json:"state,omitempty" msgpack:"state"`
	Country  string `json:"country,omitempty" msgpack:"country"`
	Postal   string `json:"postal,omitempty" msgpack:"postal"`
	Phone    string `json:"phone,omitempty" msgpack:"phone"`
	Email    string `json:"email,omitempty" msgpack:"email"`
}

// NameFormat is a user-defined name display format.
type NameFormat struct {
	Number int    `json:"number" msgpack:"number"`
	Name   string `json:"name" msgpack:"name"`
	Format string `json:"format" msgpack:"format"`
	Active bool   `json:"active" msgpack:"active"`
}

func (s *Store) readMeta(ctx context.Context, key string, v any) error {
	return s.view(ctx, func(tx kv.Txn) error {
		_, err := getMeta(tx, key, v)
		return err
	})
}

func (s *Store) writeMeta(ctx context.Context, key string, v any) error {
	return s.update(ctx, func(tx kv.Txn) error {
		return putMeta(tx, key, v)
	})
}

// Researcher returns the stored researcher, or the zero value.
func (s *Store) Researcher(ctx context.Context) (Researcher, error) {
	var r Researcher
	err := s.readMeta(ctx, metaResearcher, &r)
	return r, err
}

// SetResearcher stores the researcher.
func (s *Store) SetResearcher(ctx context.Context, r Researcher) error {
	return s.writeMeta(ctx, metaResearcher, r)
}

// NameFormats returns the stored name display formats.
func (s *Store) NameFormats(ctx context.Context) ([]NameFormat, error) {
	var f []NameFormat
	err := s.readMeta(ctx, metaNameFormats, &f)
	return f, err
}

// SetNameFormats replaces the name display formats.
func (s *Store) SetNameFormats(ctx context.Context, formats []NameFormat) error {
	return s.writeMeta(ctx, metaNameFormats, formats)
}

// DefaultPerson returns the home person, or "" when none is set.
func (s *Store) DefaultPerson(ctx context.Context) (record.Handle, error) {
	var h record.Handle
	err := s.readMeta(ctx, metaDefaultPerson, &h)
	return h, err
}

// SetDefaultPerson sets the home person.
func (s *Store) SetDefaultPerson(ctx context.Context, h record.Handle) error {
	return s.writeMeta(ctx, metaDefaultPerson, h)
}

// MediaPath returns the base directory relative media paths resolve
// against, or "" when none is set.
func (s *Store) MediaPath(ctx context.Context) (string, error) {
	var p string
	err := s.readMeta(ctx, metaMediaPath, &p)
	if err != nil {
		return "", fmt.Errorf("media path: %w", err)
	}
	return p, nil
}

// SetMediaPath sets the media base directory.
func (s *Store) SetMediaPath(ctx context.Context, path string) error {
	return s.writeMeta(ctx, metaMediaPath, path)
}

// Bookmarks returns the bookmarked handles of kind.
func (s *Store) Bookmarks(ctx context.Context, kind record.Kind) ([]record.Handle, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("bookmarks: invalid kind %d", kind)
	}
	var hs []record.Handle
	err := s.readMeta(ctx, metaBookmarksPrefix+kind.String(), &hs)
	return hs, err
}

// SetBookmarks replaces the bookmarks of kind.
func (s *Store) SetBookmarks(ctx context.Context, kind record.Kind, hs []record.Handle) error {
	if !kind.Valid() {
		return fmt.Errorf("bookmarks: invalid kind %d", kind)
	}
	return s.writeMeta(ctx, metaBookmarksPrefix+kind.String(), hs)
}

// CustomTypes returns the user-defined labels seen in type set ts, sorted.
func (s *Store) CustomTypes(ts record.TypeSet) []string {
	return slices.Clone(s.customTypes[ts])
}

func (s *Store) hasCustomType(ts record.TypeSet, name string) bool {
	_, ok := slices.BinarySearch(s.customTypes[ts], name)
	return ok
}

// saveCustomTypes persists the union of the known and the new labels.
func (s *Store) saveCustomTypes(tx kv.Txn, added map[record.TypeSet][]string) error {
	for ts, names := range added {
		if len(names) == 0 {
			continue
		}
		if err := putMeta(tx, metaCustomTypesPrefix+string(ts), unionSorted(s.customTypes[ts], names)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) mergeCustomTypes(added map[record.TypeSet][]string) {
	for ts, names := range added {
		if len(names) > 0 {
			s.customTypes[ts] = unionSorted(s.customTypes[ts], names)
		}
	}
}

func unionSorted(a, b []string) []string {
	out := append(slices.Clone(a), b...)
	slices.Sort(out)
	return slices.Compact(out)
}

// NameGroupMapping returns the group a surname is filed under. An unmapped
// surname is its own group.
func (s *Store) NameGroupMapping(ctx context.Context, surname string) (string, error) {
	group := surname
	err := s.view(ctx, func(tx kv.Txn) error {
		v, err := tx.Get(tableNameGroup, []byte(surname))
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		group = string(v)
		return nil
	})
	return group, err
}

// SetNameGroupMapping files surname under group. An empty group removes the
// mapping.
func (s *Store) SetNameGroupMapping(ctx context.Context, surname, group string) error {
	if surname == "" {
		return errors.New("name group: empty surname")
	}
	return s.update(ctx, func(tx kv.Txn) error {
		if group == "" {
			return tx.Delete(tableNameGroup, []byte(surname))
		}
		return tx.Put(tableNameGroup, []byte(surname), []byte(group))
	})
}

// NameGroupKeys lists the surnames that have a group mapping, in key order.
func (s *Store) NameGroupKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.view(ctx, func(tx kv.Txn) error {
		c := tx.Cursor(tableNameGroup, kv.CursorOptions{})
		defer c.Close()
		for c.Next() {
			keys = append(keys, string(c.Key()))
		}
		return c.Err()
	})
	return keys, err
}
