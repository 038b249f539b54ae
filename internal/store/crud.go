package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/kinstore/internal/codec"
	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// Get returns the record of kind stored under h.
func (s *Store) Get(ctx context.Context, kind record.Kind, h record.Handle) (record.Record, error) {
	var r record.Record
	err := s.view(ctx, func(tx kv.Txn) error {
		data, err := getRaw(tx, "get", kind, h)
		if err != nil {
			return err
		}
		r, err = decodeRecord("get", kind, h, data)
		return err
	})
	return r, err
}

// GetRaw returns the encoded bytes of a record.
func (s *Store) GetRaw(ctx context.Context, kind record.Kind, h record.Handle) ([]byte, error) {
	var data []byte
	err := s.view(ctx, func(tx kv.Txn) error {
		var err error
		data, err = getRaw(tx, "get", kind, h)
		return err
	})
	return data, err
}

// GetByID returns the record of kind carrying the human id.
func (s *Store) GetByID(ctx context.Context, kind record.Kind, id string) (record.Record, error) {
	h, err := s.GetByNaturalKey(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, kind, h)
}

// HasHandle reports whether a record of kind is stored under h.
func (s *Store) HasHandle(ctx context.Context, kind record.Kind, h record.Handle) (bool, error) {
	var ok bool
	err := s.view(ctx, func(tx kv.Txn) error {
		var err error
		ok, err = hasKey(tx, primaryTable(kind), []byte(h))
		return err
	})
	return ok, err
}

// Count returns the number of records of kind.
func (s *Store) Count(ctx context.Context, kind record.Kind) (int, error) {
	var n int
	err := s.view(ctx, func(tx kv.Txn) error {
		var err error
		n, err = tx.Count(primaryTable(kind))
		return err
	})
	return n, err
}

// Add commits a new record. An empty handle is filled from the handle
// generator and an empty id with the next free id of the kind.
func (s *Store) Add(ctx context.Context, txn *Transaction, r record.Record) (record.Handle, error) {
	if err := s.check(txn); err != nil {
		return "", err
	}
	if r == nil {
		return "", errors.New("add: nil record")
	}
	head := r.Head()
	if head.Handle == "" {
		head.Handle = s.opts.handles.Generate()
	}
	if head.ID == "" {
		id, err := s.FindNextID(ctx, r.Kind())
		if err != nil {
			return "", txn.fail("add", err)
		}
		head.ID = id
	}
	if err := s.CommitRecord(ctx, txn, r, time.Time{}); err != nil {
		return "", err
	}
	return head.Handle, nil
}

// CommitRecord writes r inside txn, replacing any stored version. The change
// time is set to changeTime, or to now when it is zero. The reference map
// and indices are updated before CommitRecord returns.
//
// Validation failures leave txn open. Engine and codec failures abort it
// and return a TransactionAbort.
func (s *Store) CommitRecord(ctx context.Context, txn *Transaction, r record.Record, changeTime time.Time) error {
	if err := s.check(txn); err != nil {
		return err
	}
	if r == nil {
		return errors.New("commit: nil record")
	}
	kind, head := r.Kind(), r.Head()
	if err := validHandle(head.Handle); err != nil {
		return fmt.Errorf("commit %s: %w", kind, err)
	}
	if err := validID(head.ID); err != nil {
		return fmt.Errorf("commit %s %s: %w", kind, head.Handle, err)
	}
	refs := record.References(r)
	for _, ref := range refs {
		if err := validHandle(ref.Handle); err != nil {
			return fmt.Errorf("commit %s %s: reference: %w", kind, head.Handle, err)
		}
	}

	if changeTime.IsZero() {
		changeTime = s.opts.now()
	}
	head.Change = changeTime.Unix()
	data, err := codec.Encode(r)
	if err != nil {
		return txn.fail("commit", err)
	}
	if err := txn.put(kind, head.Handle, data, refs); err != nil {
		return txn.fail("commit", err)
	}
	txn.noteCustomTypes(r)
	return nil
}

// Remove deletes the record of kind stored under h together with every
// reference entry it owns. Records that still point at h are left alone;
// use FindBacklinkHandles to find them first.
func (s *Store) Remove(ctx context.Context, txn *Transaction, kind record.Kind, h record.Handle) error {
	if err := s.check(txn); err != nil {
		return err
	}
	old, err := getPrimary(txn.kv, kind, h)
	if err != nil {
		return txn.fail("remove", err)
	}
	if old == nil {
		return notFound("remove", kind, h, "")
	}
	if err := txn.put(kind, h, nil, nil); err != nil {
		return txn.fail("remove", err)
	}
	return nil
}

// getAs is Get with the result asserted to the concrete record type.
func getAs[T record.Record](ctx context.Context, s *Store, kind record.Kind, h record.Handle) (T, error) {
	var zero T
	r, err := s.Get(ctx, kind, h)
	if err != nil {
		return zero, err
	}
	t, ok := r.(T)
	if !ok {
		return zero, decodeError("get", kind, h, fmt.Errorf("decoded %T", r))
	}
	return t, nil
}

// getByIDAs is GetByID with the result asserted to the concrete record type.
func getByIDAs[T record.Record](ctx context.Context, s *Store, kind record.Kind, id string) (T, error) {
	var zero T
	h, err := s.GetByNaturalKey(ctx, kind, id)
	if err != nil {
		return zero, err
	}
	return getAs[T](ctx, s, kind, h)
}
