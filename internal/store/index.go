package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// indexKey runs the association function of ix over data. A nil data has no
// key.
func indexKey(ix Index, h record.Handle, data []byte) (string, bool, error) {
	if data == nil {
		return "", false, nil
	}
	key, ok, err := ix.Key(h, data)
	if err != nil {
		return "", false, decodeError("index "+ix.Name, ix.Kind, h, err)
	}
	return key, ok, nil
}

// updateIndexes moves h from its old key to its new key in every attached
// index of kind. Detached indices are skipped; they are rebuilt when the
// batch that detached them commits.
func (s *Store) updateIndexes(tx kv.Txn, kind record.Kind, h record.Handle, old, data []byte, touched map[string]struct{}) error {
	for _, ix := range indexesFor(kind) {
		if s.detached[ix.Name] {
			continue
		}
		oldKey, hadOld, err := indexKey(ix, h, old)
		if err != nil {
			return err
		}
		newKey, hasNew, err := indexKey(ix, h, data)
		if err != nil {
			return err
		}
		if hadOld && hasNew && oldKey == newKey {
			continue
		}
		if hadOld {
			if err := tx.DeleteValue(ix.Name, []byte(oldKey), []byte(h)); err != nil {
				return fmt.Errorf("index %s: %w", ix.Name, err)
			}
		}
		if hasNew {
			if err := tx.Put(ix.Name, []byte(newKey), []byte(h)); err != nil {
				return fmt.Errorf("index %s: %w", ix.Name, err)
			}
		}
		if ix.Name == tableSurnames && touched != nil {
			if hadOld {
				touched[oldKey] = struct{}{}
			}
			if hasNew {
				touched[newKey] = struct{}{}
			}
		}
	}
	return nil
}

// indexHandles lists the handles stored under key, in sort order.
func indexHandles(tx kv.Txn, index, key string) ([]record.Handle, error) {
	c := tx.Cursor(index, kv.CursorOptions{Key: []byte(key)})
	defer c.Close()
	var out []record.Handle
	for c.Next() {
		out = append(out, record.Handle(c.Value()))
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("index %s: %w", index, err)
	}
	return out, nil
}

// hasPair reports whether a duplicate table holds exactly (key, value).
func hasPair(tx kv.Txn, table string, key, value []byte) (bool, error) {
	c := tx.Cursor(table, kv.CursorOptions{Key: key})
	defer c.Close()
	for c.Next() {
		if bytes.Equal(c.Value(), value) {
			return true, nil
		}
	}
	return false, c.Err()
}

// hasKey reports whether a table holds any value under key.
func hasKey(tx kv.Txn, table string, key []byte) (bool, error) {
	_, err := tx.Get(table, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// GetByNaturalKey resolves a human id to a handle. When several records
// share the id, the first handle in sort order wins.
func (s *Store) GetByNaturalKey(ctx context.Context, kind record.Kind, id string) (record.Handle, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("get by id: invalid kind %d", kind)
	}
	var h record.Handle
	err := s.view(ctx, func(tx kv.Txn) error {
		v, err := tx.Get(idIndexName(kind), []byte(id))
		if errors.Is(err, kv.ErrNotFound) {
			return notFound("get by id", kind, "", fmt.Sprintf("no record with id %q", id))
		}
		if err != nil {
			return fmt.Errorf("get by id: %w", err)
		}
		h = record.Handle(v)
		return nil
	})
	return h, err
}

// HasID reports whether any record of kind carries id.
func (s *Store) HasID(ctx context.Context, kind record.Kind, id string) (bool, error) {
	_, err := s.GetByNaturalKey(ctx, kind, id)
	if IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// SurnameHandles lists the people whose primary surname is surname.
// It fails with ErrIndexDetached while a batch transaction is open.
func (s *Store) SurnameHandles(ctx context.Context, surname string) ([]record.Handle, error) {
	if s.detached[tableSurnames] {
		return nil, ErrIndexDetached
	}
	var out []record.Handle
	err := s.view(ctx, func(tx kv.Txn) error {
		var err error
		out, err = indexHandles(tx, tableSurnames, normaliseSurname(surname))
		return err
	})
	return out, err
}

// RebuildIndex drops one secondary index and refills it from a single scan
// of its primary table.
func (s *Store) RebuildIndex(ctx context.Context, name string) error {
	ix, err := lookupIndex(name)
	if err != nil {
		return err
	}
	if s.detached[name] {
		return ErrIndexDetached
	}
	if s.active != nil {
		return ErrTransactionOpen
	}

	start := time.Now()
	var names []string
	err = s.update(ctx, func(tx kv.Txn) error {
		if err := tx.DropTable(ix.Name); err != nil {
			return err
		}
		if err := tx.CreateTable(kv.TableSpec{Name: ix.Name, Dup: true}); err != nil {
			return err
		}
		if err := fillIndex(tx, ix); err != nil {
			return err
		}
		if ix.Name == tableSurnames {
			names, err = scanSurnames(tx)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild index %s: %w", name, err)
	}
	if ix.Name == tableSurnames {
		s.surnames.set(names)
	}
	s.log.Info("index rebuilt", "index", name, "duration", time.Since(start))
	return nil
}

// fillIndex streams the primary table of ix through its association function.
func fillIndex(tx kv.Txn, ix Index) error {
	c := tx.Cursor(primaryTable(ix.Kind), kv.CursorOptions{PageSize: cursorPageRecords})
	defer c.Close()
	for c.Next() {
		h := record.Handle(c.Key())
		key, ok, err := indexKey(ix, h, c.Value())
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := tx.Put(ix.Name, []byte(key), []byte(h)); err != nil {
			return err
		}
	}
	return c.Err()
}
