package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/kinstore/internal/kv"
)

// undoFrame is the entry list of one committed interactive transaction.
type undoFrame struct {
	desc    string
	at      time.Time
	entries []Entry
}

// HistoryEntry describes one undoable or redoable transaction.
type HistoryEntry struct {
	Description string    `json:"description"`
	Time        time.Time `json:"time"`
	Entries     int       `json:"entries"`
}

func (s *Store) pushUndo(f *undoFrame) {
	s.undo = append(s.undo, f)
	if over := len(s.undo) - s.opts.undoLimit; over > 0 {
		clear(s.undo[:over])
		s.undo = s.undo[over:]
	}
}

// CanUndo reports whether Undo has a frame to apply.
func (s *Store) CanUndo() bool { return len(s.undo) > 0 }

// CanRedo reports whether Redo has a frame to apply.
func (s *Store) CanRedo() bool { return len(s.redo) > 0 }

// UndoHistory lists the undo frames, newest first.
func (s *Store) UndoHistory() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(s.undo))
	for i := len(s.undo) - 1; i >= 0; i-- {
		f := s.undo[i]
		out = append(out, HistoryEntry{Description: f.desc, Time: f.at, Entries: len(f.entries)})
	}
	return out
}

// Undo reverses the newest committed interactive transaction. Entries are
// applied in reverse order writing their pre-images, reference entries
// included, in a single engine transaction. On failure nothing is written
// and the undo and redo stacks are left as they were.
func (s *Store) Undo(ctx context.Context) ([]Change, error) {
	if err := s.canReplay(); err != nil {
		return nil, err
	}
	if len(s.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	f := s.undo[len(s.undo)-1]
	changes, err := s.replay(ctx, f, true)
	if err != nil {
		return nil, fmt.Errorf("undo %q: %w", f.desc, err)
	}
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, f)
	s.metrics.undoRedo.WithLabelValues("undo").Inc()
	s.log.Debug("undone", "transaction", f.desc, "entries", len(f.entries))
	return changes, nil
}

// Redo re-applies the most recently undone transaction, writing the
// post-images of its entries in their original order.
func (s *Store) Redo(ctx context.Context) ([]Change, error) {
	if err := s.canReplay(); err != nil {
		return nil, err
	}
	if len(s.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	f := s.redo[len(s.redo)-1]
	changes, err := s.replay(ctx, f, false)
	if err != nil {
		return nil, fmt.Errorf("redo %q: %w", f.desc, err)
	}
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, f)
	s.metrics.undoRedo.WithLabelValues("redo").Inc()
	s.log.Debug("redone", "transaction", f.desc, "entries", len(f.entries))
	return changes, nil
}

func (s *Store) canReplay() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.opts.readOnly:
		return ErrReadOnly
	case s.active != nil:
		return ErrTransactionOpen
	}
	return nil
}

// replay applies the pre-images (undo) or post-images (redo) of a frame.
// Reference entries are replayed as logged, never recomputed.
func (s *Store) replay(ctx context.Context, f *undoFrame, undo bool) ([]Change, error) {
	tx, err := s.engine.Begin(ctx, true)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	touched := map[string]struct{}{}
	gender := genderStats{}
	changes := newChangeSet()
	apply := func(e Entry) error {
		data := e.New
		if undo {
			data = e.Old
		}
		if e.IsReference() {
			return s.applyRefEntry(tx, e, data)
		}
		cur, err := getPrimary(tx, e.Kind, e.Handle)
		if err != nil {
			return err
		}
		if err := s.writePrimary(tx, e.Kind, e.Handle, cur, data, touched); err != nil {
			return err
		}
		if err := gender.count(e.Kind, e.Handle, cur, data); err != nil {
			return err
		}
		changes.note(e.Kind, e.Handle, cur != nil, data != nil)
		return nil
	}

	if undo {
		for i := len(f.entries) - 1; i >= 0; i-- {
			if err := apply(f.entries[i]); err != nil {
				return nil, err
			}
		}
	} else {
		for _, e := range f.entries {
			if err := apply(e); err != nil {
				return nil, err
			}
		}
	}

	present, err := surnamePresence(tx, touched)
	if err != nil {
		return nil, err
	}
	stats := s.genderStats.merge(gender)
	if err := saveGenderStats(tx, stats, gender); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.surnames.apply(present)
	s.genderStats = stats
	s.changed = true
	return changes.list(), nil
}

// surnamePresence reports, for each surname key, whether any person still
// carries it.
func surnamePresence(tx kv.Txn, keys map[string]struct{}) (map[string]bool, error) {
	present := make(map[string]bool, len(keys))
	for key := range keys {
		ok, err := hasKey(tx, tableSurnames, []byte(key))
		if err != nil {
			return nil, err
		}
		present[key] = ok
	}
	return present, nil
}
