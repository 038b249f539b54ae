package store

import (
	"bytes"
	"context"
	"iter"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// Cursor walks one primary table in handle order.
//
//	c, err := s.Cursor(ctx, record.KindPerson)
//	if err != nil { ... }
//	defer c.Close()
//	for c.Next() {
//		r, err := c.Record()
//		...
//	}
//	if err := c.Err(); err != nil { ... }
//
// A cursor reads in pages and holds no engine connection between them, but
// it must be closed to release its read transaction.
type Cursor struct {
	kind   record.Kind
	c      kv.Cursor
	done   func()
	closed bool
}

// Cursor opens a cursor over the records of kind. Inside an open
// transaction the cursor sees its uncommitted writes.
func (s *Store) Cursor(ctx context.Context, kind record.Kind) (*Cursor, error) {
	tx, done, err := s.reader(ctx)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		kind: kind,
		c:    tx.Cursor(primaryTable(kind), kv.CursorOptions{PageSize: cursorPageRecords}),
		done: done,
	}, nil
}

// Next advances to the next record.
func (c *Cursor) Next() bool {
	if c.closed {
		return false
	}
	return c.c.Next()
}

// Handle returns the handle of the current record.
func (c *Cursor) Handle() record.Handle { return record.Handle(c.c.Key()) }

// Data returns a copy of the encoded bytes of the current record.
func (c *Cursor) Data() []byte { return bytes.Clone(c.c.Value()) }

// Record decodes the current record.
func (c *Cursor) Record() (record.Record, error) {
	return decodeRecord("cursor", c.kind, c.Handle(), c.c.Value())
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.c.Err() }

// Close releases the cursor. It is safe to call more than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.c.Close()
	c.done()
	return err
}

// Handles yields every handle of kind in native key order. The cursor is
// closed when the loop ends, however it ends.
func (s *Store) Handles(ctx context.Context, kind record.Kind) iter.Seq2[record.Handle, error] {
	return func(yield func(record.Handle, error) bool) {
		c, err := s.Cursor(ctx, kind)
		if err != nil {
			yield("", err)
			return
		}
		defer c.Close()
		for c.Next() {
			if !yield(c.Handle(), nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield("", err)
		}
	}
}

// Records yields every decoded record of kind in handle order. A record
// that fails to decode is yielded as an error and iteration continues.
func (s *Store) Records(ctx context.Context, kind record.Kind) iter.Seq2[record.Record, error] {
	return func(yield func(record.Record, error) bool) {
		c, err := s.Cursor(ctx, kind)
		if err != nil {
			yield(nil, err)
			return
		}
		defer c.Close()
		for c.Next() {
			if !yield(c.Record()) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(nil, err)
		}
	}
}
