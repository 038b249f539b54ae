package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/kinstore/internal/codec"
	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// getPrimary returns the stored bytes of (kind, h), or nil when absent.
func getPrimary(tx kv.Txn, kind record.Kind, h record.Handle) ([]byte, error) {
	data, err := tx.Get(primaryTable(kind), []byte(h))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", kind, h, err)
	}
	return data, nil
}

// getRaw is getPrimary with NotFound for a missing record.
func getRaw(tx kv.Txn, op string, kind record.Kind, h record.Handle) ([]byte, error) {
	data, err := getPrimary(tx, kind, h)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, notFound(op, kind, h, "")
	}
	return data, nil
}

// decodeRecord decodes stored bytes, reporting corruption as a decode error
// that names the record.
func decodeRecord(op string, kind record.Kind, h record.Handle, data []byte) (record.Record, error) {
	r, err := codec.Decode(kind, data)
	if err != nil {
		return nil, decodeError(op, kind, h, err)
	}
	return r, nil
}

// writePrimary replaces the bytes of (kind, h) with data, deleting the row
// when data is nil, and keeps the attached indices in step. old must be the
// current value (nil when absent). Surname index keys that change are added
// to touched when it is non-nil.
func (s *Store) writePrimary(tx kv.Txn, kind record.Kind, h record.Handle, old, data []byte, touched map[string]struct{}) error {
	table := primaryTable(kind)
	switch {
	case data != nil:
		if err := tx.Put(table, []byte(h), data); err != nil {
			return fmt.Errorf("write %s %s: %w", kind, h, err)
		}
		s.metrics.mutations.WithLabelValues(kind.String(), "put").Inc()
	case old != nil:
		if err := tx.Delete(table, []byte(h)); err != nil {
			return fmt.Errorf("delete %s %s: %w", kind, h, err)
		}
		s.metrics.mutations.WithLabelValues(kind.String(), "delete").Inc()
	}
	return s.updateIndexes(tx, kind, h, old, data, touched)
}

// validID rejects ids that would corrupt the id index key.
func validID(id string) error {
	if strings.IndexByte(id, 0) >= 0 {
		return fmt.Errorf("id %q contains a NUL byte", id)
	}
	return nil
}

// validHandle rejects handles that cannot be stored as reference keys.
func validHandle(h record.Handle) error {
	if h == "" {
		return errors.New("empty handle")
	}
	if strings.IndexByte(string(h), 0) >= 0 {
		return fmt.Errorf("handle %q contains a NUL byte", h)
	}
	return nil
}
