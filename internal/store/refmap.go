package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// refRow is one reference entry: owner points at target.
type refRow struct {
	OwnerKind  record.Kind
	Owner      record.Handle
	TargetKind record.Kind
	Target     record.Handle
}

// refKey is the reference_map key of (owner, target).
func refKey(owner, target record.Handle) []byte {
	k := make([]byte, 0, len(owner)+1+len(target))
	k = append(k, owner...)
	k = append(k, 0)
	return append(k, target...)
}

func splitRefKey(key []byte) (owner, target record.Handle, ok bool) {
	i := bytes.IndexByte(key, 0)
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return record.Handle(key[:i]), record.Handle(key[i+1:]), true
}

// refValue is the reference_map value: the owner and target kinds.
func refValue(ownerKind, targetKind record.Kind) []byte {
	return []byte{byte(ownerKind), byte(targetKind)}
}

func parseRefValue(v []byte) (ownerKind, targetKind record.Kind, ok bool) {
	if len(v) != 2 {
		return 0, 0, false
	}
	ownerKind, targetKind = record.Kind(v[0]), record.Kind(v[1])
	return ownerKind, targetKind, ownerKind.Valid() && targetKind.Valid()
}

// addRef inserts one reference entry into the main table and its indices.
// The by-target index is skipped while a batch has it detached.
func (s *Store) addRef(tx kv.Txn, row refRow) error {
	key := refKey(row.Owner, row.Target)
	if err := tx.Put(tableRefMain, key, refValue(row.OwnerKind, row.TargetKind)); err != nil {
		return fmt.Errorf("add reference: %w", err)
	}
	if err := tx.Put(tableRefByOwner, []byte(row.Owner), key); err != nil {
		return fmt.Errorf("add reference: %w", err)
	}
	if s.detached[tableRefByTarget] {
		return nil
	}
	if err := tx.Put(tableRefByTarget, []byte(row.Target), key); err != nil {
		return fmt.Errorf("add reference: %w", err)
	}
	return nil
}

// removeRef deletes one reference entry from the main table and its indices.
func (s *Store) removeRef(tx kv.Txn, owner, target record.Handle) error {
	key := refKey(owner, target)
	if err := tx.Delete(tableRefMain, key); err != nil {
		return fmt.Errorf("remove reference: %w", err)
	}
	if err := tx.DeleteValue(tableRefByOwner, []byte(owner), key); err != nil {
		return fmt.Errorf("remove reference: %w", err)
	}
	if s.detached[tableRefByTarget] {
		return nil
	}
	if err := tx.DeleteValue(tableRefByTarget, []byte(target), key); err != nil {
		return fmt.Errorf("remove reference: %w", err)
	}
	return nil
}

// ownedRows lists the reference entries owned by owner, in target order.
func ownedRows(tx kv.Txn, owner record.Handle) ([]refRow, error) {
	c := tx.Cursor(tableRefByOwner, kv.CursorOptions{Key: []byte(owner)})
	defer c.Close()
	var rows []refRow
	for c.Next() {
		row, err := loadRow(tx, c.Value())
		if err != nil {
			return nil, err
		}
		if row.Owner != owner {
			return nil, inconsistency("references", owner, fmt.Sprintf("by-owner row points at entry of %s", row.Owner))
		}
		rows = append(rows, row)
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("references of %s: %w", owner, err)
	}
	return rows, nil
}

// loadRow resolves a main-table key into its row.
func loadRow(tx kv.Txn, key []byte) (refRow, error) {
	owner, target, ok := splitRefKey(key)
	if !ok {
		return refRow{}, inconsistency("references", "", fmt.Sprintf("malformed reference key %q", key))
	}
	v, err := tx.Get(tableRefMain, key)
	if errors.Is(err, kv.ErrNotFound) {
		return refRow{}, inconsistency("references", owner, fmt.Sprintf("index row for %s -> %s has no entry", owner, target))
	}
	if err != nil {
		return refRow{}, fmt.Errorf("references: %w", err)
	}
	ownerKind, targetKind, ok := parseRefValue(v)
	if !ok {
		return refRow{}, inconsistency("references", owner, fmt.Sprintf("malformed reference value for %s -> %s", owner, target))
	}
	return refRow{OwnerKind: ownerKind, Owner: owner, TargetKind: targetKind, Target: target}, nil
}

// updateReferences makes the rows owned by owner equal refs: rows no longer
// referenced are removed and new ones inserted. Every row written is passed
// to log as a reference entry so undo and redo can replay it.
func (s *Store) updateReferences(tx kv.Txn, ownerKind record.Kind, owner record.Handle, refs []record.Ref, log func(Entry)) error {
	existing, err := ownedRows(tx, owner)
	if err != nil {
		return err
	}
	current := make(map[record.Handle]record.Kind, len(refs))
	for _, ref := range refs {
		current[ref.Handle] = ref.Kind
	}
	stored := make(map[record.Handle]refRow, len(existing))
	for _, row := range existing {
		stored[row.Target] = row
	}

	for _, row := range existing {
		kind, keep := current[row.Target]
		if keep && kind == row.TargetKind && row.OwnerKind == ownerKind {
			continue
		}
		if err := s.removeRef(tx, owner, row.Target); err != nil {
			return err
		}
		if log != nil {
			log(Entry{Kind: ownerKind, Handle: owner, Target: row.Target, Old: refValue(row.OwnerKind, row.TargetKind)})
		}
	}
	for _, ref := range refs {
		if row, ok := stored[ref.Handle]; ok && row.TargetKind == ref.Kind && row.OwnerKind == ownerKind {
			continue
		}
		if err := validHandle(ref.Handle); err != nil {
			return fmt.Errorf("reference from %s: %w", owner, err)
		}
		row := refRow{OwnerKind: ownerKind, Owner: owner, TargetKind: ref.Kind, Target: ref.Handle}
		if err := s.addRef(tx, row); err != nil {
			return err
		}
		if log != nil {
			log(Entry{Kind: ownerKind, Handle: owner, Target: ref.Handle, New: refValue(ownerKind, ref.Kind)})
		}
	}
	return nil
}

// applyRefEntry writes one side of a logged reference entry: data nil
// removes the row, otherwise data holds the row's kinds.
func (s *Store) applyRefEntry(tx kv.Txn, e Entry, data []byte) error {
	if data == nil {
		return s.removeRef(tx, e.Handle, e.Target)
	}
	ownerKind, targetKind, ok := parseRefValue(data)
	if !ok {
		return inconsistency("replay", e.Handle, fmt.Sprintf("malformed logged reference to %s", e.Target))
	}
	return s.addRef(tx, refRow{OwnerKind: ownerKind, Owner: e.Handle, TargetKind: targetKind, Target: e.Target})
}

// FindBacklinkHandles yields every record that references target, as
// (owner kind, owner handle), in the native order of the by-target index.
// When kinds is non-empty only owners of those kinds are yielded. Each call
// opens a fresh cursor, so the sequence can be iterated again.
//
// While a batch transaction is open the by-target index is detached and the
// sequence yields ErrIndexDetached.
func (s *Store) FindBacklinkHandles(ctx context.Context, target record.Handle, kinds ...record.Kind) iter.Seq2[record.Ref, error] {
	want := make(map[record.Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	return func(yield func(record.Ref, error) bool) {
		if s.detached[tableRefByTarget] {
			yield(record.Ref{}, ErrIndexDetached)
			return
		}
		tx, done, err := s.reader(ctx)
		if err != nil {
			yield(record.Ref{}, err)
			return
		}
		defer done()

		c := tx.Cursor(tableRefByTarget, kv.CursorOptions{Key: []byte(target)})
		defer c.Close()
		for c.Next() {
			row, err := loadRow(tx, c.Value())
			if err != nil {
				yield(record.Ref{}, err)
				return
			}
			if len(want) > 0 && !want[row.OwnerKind] {
				continue
			}
			if !yield(record.Ref{Kind: row.OwnerKind, Handle: row.Owner}, nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(record.Ref{}, fmt.Errorf("backlinks of %s: %w", target, err))
		}
	}
}

// Backlinks collects FindBacklinkHandles into a slice.
func (s *Store) Backlinks(ctx context.Context, target record.Handle, kinds ...record.Kind) ([]record.Ref, error) {
	var out []record.Ref
	for ref, err := range s.FindBacklinkHandles(ctx, target, kinds...) {
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, nil
}

// IsReferenced reports whether any record references h.
func (s *Store) IsReferenced(ctx context.Context, h record.Handle) (bool, error) {
	for _, err := range s.FindBacklinkHandles(ctx, h) {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// References lists the records owner points at, as stored in the reference
// map, ordered by target handle.
func (s *Store) References(ctx context.Context, owner record.Handle) ([]record.Ref, error) {
	var out []record.Ref
	err := s.view(ctx, func(tx kv.Txn) error {
		rows, err := ownedRows(tx, owner)
		if err != nil {
			return err
		}
		for _, row := range rows {
			out = append(out, record.Ref{Kind: row.TargetKind, Handle: row.Target})
		}
		return nil
	})
	return out, err
}
