package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// Entry is one logged mutation. Old is the pre-image (nil for an insert) and
// New the post-image (nil for a delete).
//
// Record entries carry primary-table bytes. Reference entries have Target
// set: Handle is the owner, Kind the owner kind, and Old/New hold the
// two-byte reference row value.
type Entry struct {
	Kind   record.Kind
	Handle record.Handle
	Target record.Handle
	Old    []byte
	New    []byte
}

// IsReference reports whether e logs a reference map row.
func (e Entry) IsReference() bool { return e.Target != "" }

// Action is what a transaction did to one record.
type Action uint8

const (
	ActionAdd Action = iota + 1
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// MarshalText encodes an action by name.
func (a Action) MarshalText() ([]byte, error) {
	if a < ActionAdd || a > ActionDelete {
		return nil, fmt.Errorf("unknown action %d", uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText decodes "add", "update" or "delete".
func (a *Action) UnmarshalText(b []byte) error {
	for _, c := range []Action{ActionAdd, ActionUpdate, ActionDelete} {
		if c.String() == string(b) {
			*a = c
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", b)
}

// Change notifies a caller that a record was added, updated or deleted.
// Commit, Undo and Redo return one Change per affected record.
type Change struct {
	Kind   record.Kind   `json:"kind"`
	Handle record.Handle `json:"handle"`
	Action Action        `json:"action"`
}

// changeSet folds a sequence of writes into one Change per record, judged
// from whether the record existed before the first write and after the last.
type changeSet struct {
	order   []record.Ref
	existed map[record.Ref]bool
	exists  map[record.Ref]bool
}

func newChangeSet() *changeSet {
	return &changeSet{existed: map[record.Ref]bool{}, exists: map[record.Ref]bool{}}
}

func (c *changeSet) note(kind record.Kind, h record.Handle, before, after bool) {
	ref := record.Ref{Kind: kind, Handle: h}
	if _, seen := c.existed[ref]; !seen {
		c.order = append(c.order, ref)
		c.existed[ref] = before
	}
	c.exists[ref] = after
}

func (c *changeSet) list() []Change {
	out := make([]Change, 0, len(c.order))
	for _, ref := range c.order {
		before, after := c.existed[ref], c.exists[ref]
		var a Action
		switch {
		case !before && after:
			a = ActionAdd
		case before && after:
			a = ActionUpdate
		case before && !after:
			a = ActionDelete
		default:
			continue
		}
		out = append(out, Change{Kind: ref.Kind, Handle: ref.Handle, Action: a})
	}
	return out
}

// Transaction groups mutations into one atomic commit.
//
// A transaction owns one engine write transaction. Mutations are applied to
// it immediately, so reads through the store see them before commit, and are
// logged as entries. Commit makes everything durable at once; Abort or any
// failing mutation discards everything.
//
// An interactive transaction logs pre- and post-images and becomes one undo
// frame. A batch transaction logs nothing, detaches the surname index and
// the by-target reference index, and rebuilds them at commit.
type Transaction struct {
	s       *Store
	kv      kv.Txn
	desc    string
	batch   bool
	started time.Time
	done    bool

	entries     []Entry
	changes     *changeSet
	touched     map[string]struct{}
	owners      map[record.Handle]record.Kind
	customTypes map[record.TypeSet][]string
	gender      genderStats
}

// BeginOption configures Begin.
type BeginOption func(*Transaction)

// Batch makes the transaction a batch transaction: irreversible, no undo
// frame, secondary structures rebuilt at commit.
func Batch() BeginOption {
	return func(t *Transaction) { t.batch = true }
}

// Begin opens a transaction. Only one transaction may be open at a time.
func (s *Store) Begin(ctx context.Context, desc string, opts ...BeginOption) (*Transaction, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.opts.readOnly {
		return nil, ErrReadOnly
	}
	if s.active != nil {
		return nil, ErrTransactionOpen
	}

	t := &Transaction{
		s:           s,
		desc:        desc,
		started:     s.opts.now(),
		changes:     newChangeSet(),
		touched:     map[string]struct{}{},
		owners:      map[record.Handle]record.Kind{},
		customTypes: map[record.TypeSet][]string{},
		gender:      genderStats{},
	}
	for _, opt := range opts {
		opt(t)
	}

	tx, err := s.engine.Begin(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("begin %q: %w", desc, err)
	}
	t.kv = tx

	if t.batch {
		detached := map[string]bool{}
		for _, spec := range detachedInBatch() {
			if err := tx.DropTable(spec.Name); err != nil {
				tx.Rollback()
				return nil, fmt.Errorf("begin %q: detach %s: %w", desc, spec.Name, err)
			}
			detached[spec.Name] = true
		}
		s.detached = detached
		s.abortPossible = false
		s.undo, s.redo = nil, nil
	}

	s.active = t
	s.metrics.openTxns.Inc()
	s.log.Debug("transaction begun", "transaction", desc, "batch", t.batch)
	return t, nil
}

// Description returns the text passed to Begin.
func (t *Transaction) Description() string { return t.desc }

// IsBatch reports whether t is a batch transaction.
func (t *Transaction) IsBatch() bool { return t.batch }

// Entries returns a copy of the logged entries. Batch transactions log none.
func (t *Transaction) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transaction) log(e Entry) {
	if t.batch {
		return
	}
	t.entries = append(t.entries, e)
}

// check rejects a transaction that is closed or belongs to another store.
func (s *Store) check(t *Transaction) error {
	if s.closed {
		return ErrClosed
	}
	if t == nil || t.s != s {
		return ErrForeignTransaction
	}
	if t.done {
		return ErrTransactionClosed
	}
	return nil
}

// put writes the new bytes of a record, maintains indices and the
// reference map, and logs both.
func (t *Transaction) put(kind record.Kind, h record.Handle, data []byte, refs []record.Ref) error {
	s := t.s
	old, err := getPrimary(t.kv, kind, h)
	if err != nil {
		return err
	}
	if err := s.writePrimary(t.kv, kind, h, old, data, t.touched); err != nil {
		return err
	}
	if err := t.gender.count(kind, h, old, data); err != nil {
		return err
	}
	t.log(Entry{Kind: kind, Handle: h, Old: old, New: data})
	t.changes.note(kind, h, old != nil, data != nil)
	if err := s.updateReferences(t.kv, kind, h, refs, t.log); err != nil {
		return err
	}
	t.owners[h] = kind
	return nil
}

// Record applies a raw primary-table entry: e.New replaces the stored bytes
// of (e.Kind, e.Handle), or deletes the record when nil. The reference map
// and indices follow the new bytes. When e.Old is non-nil it must equal the
// stored bytes, otherwise Record fails without touching the transaction.
// Reference entries are derived and cannot be recorded directly.
func (t *Transaction) Record(e Entry) error {
	s := t.s
	if err := s.check(t); err != nil {
		return err
	}
	if e.IsReference() {
		return fmt.Errorf("record: reference entries are derived from records")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("record: invalid kind %d", e.Kind)
	}
	if err := validHandle(e.Handle); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	var refs []record.Ref
	if e.New != nil {
		r, err := decodeRecord("record", e.Kind, e.Handle, e.New)
		if err != nil {
			return t.fail("record", err)
		}
		if r.Head().Handle != e.Handle {
			return fmt.Errorf("record: bytes carry handle %q, entry names %q", r.Head().Handle, e.Handle)
		}
		refs = record.References(r)
		t.noteCustomTypes(r)
	}
	if e.Old != nil {
		cur, err := getPrimary(t.kv, e.Kind, e.Handle)
		if err != nil {
			return t.fail("record", err)
		}
		if !bytes.Equal(cur, e.Old) {
			return fmt.Errorf("record: %s %s changed since its pre-image was read", e.Kind, e.Handle)
		}
	}
	if err := t.put(e.Kind, e.Handle, e.New, refs); err != nil {
		return t.fail("record", err)
	}
	return nil
}

func (t *Transaction) noteCustomTypes(r record.Record) {
	for ts, names := range record.CustomTypes(r) {
		for _, n := range names {
			if !t.s.hasCustomType(ts, n) {
				t.customTypes[ts] = append(t.customTypes[ts], n)
			}
		}
	}
}

// fail rolls the transaction back and wraps err as a TransactionAbort.
func (t *Transaction) fail(op string, err error) error {
	t.s.log.Warn("transaction aborted", "transaction", t.desc, "op", op, "error", err)
	t.close("aborted")
	return abortError(op, t.desc, err)
}

// close releases the engine transaction and the store's open slot.
func (t *Transaction) close(outcome string) {
	if t.done {
		return
	}
	t.done = true
	t.kv.Rollback()
	s := t.s
	s.active = nil
	s.detached = nil
	s.metrics.openTxns.Dec()
	s.metrics.transactions.WithLabelValues(t.mode(), outcome).Inc()
}

func (t *Transaction) mode() string {
	if t.batch {
		return "batch"
	}
	return "interactive"
}

// Abort discards every mutation of the transaction.
func (t *Transaction) Abort() error {
	if t.done {
		return ErrTransactionClosed
	}
	t.close("aborted")
	t.s.log.Debug("transaction aborted", "transaction", t.desc)
	return nil
}

// Commit makes the transaction durable and returns one Change per affected
// record. A batch transaction first rebuilds the structures it detached. An
// interactive transaction with entries becomes the newest undo frame and
// clears the redo stack.
//
// If Commit fails the transaction is rolled back and the error is a
// TransactionAbort.
func (t *Transaction) Commit() ([]Change, error) {
	s := t.s
	if err := s.check(t); err != nil {
		return nil, err
	}

	var (
		surnames []string
		present  map[string]bool
	)
	if t.batch {
		if err := s.reattach(t.kv); err != nil {
			return nil, t.fail("commit", err)
		}
		names, err := scanSurnames(t.kv)
		if err != nil {
			return nil, t.fail("commit", err)
		}
		surnames = names
	} else {
		if s.opts.verifyReferences {
			if err := t.verifyReferences(); err != nil {
				return nil, t.fail("commit", err)
			}
		}
		var err error
		if present, err = surnamePresence(t.kv, t.touched); err != nil {
			return nil, t.fail("commit", err)
		}
	}
	if err := s.saveCustomTypes(t.kv, t.customTypes); err != nil {
		return nil, t.fail("commit", err)
	}
	gender := s.genderStats.merge(t.gender)
	if err := saveGenderStats(t.kv, gender, t.gender); err != nil {
		return nil, t.fail("commit", err)
	}

	if err := t.kv.Commit(); err != nil {
		return nil, t.fail("commit", err)
	}
	t.done = true
	s.active = nil
	s.detached = nil
	s.metrics.openTxns.Dec()
	s.metrics.transactions.WithLabelValues(t.mode(), "committed").Inc()
	s.metrics.commitDuration.WithLabelValues(t.mode()).Observe(s.opts.now().Sub(t.started).Seconds())

	s.mergeCustomTypes(t.customTypes)
	s.genderStats = gender
	if t.batch {
		s.surnames.set(surnames)
	} else {
		s.surnames.apply(present)
		if len(t.entries) > 0 {
			s.pushUndo(&undoFrame{desc: t.desc, at: s.opts.now(), entries: t.entries})
			s.redo = nil
		}
	}

	changes := t.changes.list()
	if len(changes) > 0 || t.batch {
		s.changed = true
	}
	s.log.Debug("transaction committed",
		"transaction", t.desc,
		"batch", t.batch,
		"entries", len(t.entries),
		"changes", len(changes),
	)
	return changes, nil
}

// reattach re-creates the tables a batch detached and refills them from the
// primary person table and the reference map.
func (s *Store) reattach(tx kv.Txn) error {
	s.detached = nil
	for _, spec := range detachedInBatch() {
		if err := tx.CreateTable(spec); err != nil {
			return err
		}
	}
	for _, ix := range indexes {
		if !ix.Detachable {
			continue
		}
		if err := fillIndex(tx, ix); err != nil {
			return err
		}
	}

	c := tx.Cursor(tableRefMain, kv.CursorOptions{PageSize: cursorPageRecords})
	defer c.Close()
	for c.Next() {
		_, target, ok := splitRefKey(c.Key())
		if !ok {
			return inconsistency("commit", "", fmt.Sprintf("malformed reference key %q", c.Key()))
		}
		if err := tx.Put(tableRefByTarget, []byte(target), c.Key()); err != nil {
			return err
		}
	}
	return c.Err()
}

// verifyReferences re-reads the rows of every owner written by t and
// compares them with the references of the stored record.
func (t *Transaction) verifyReferences() error {
	for h, kind := range t.owners {
		data, err := getPrimary(t.kv, kind, h)
		if err != nil {
			return err
		}
		var want []record.Ref
		if data != nil {
			r, err := decodeRecord("verify", kind, h, data)
			if err != nil {
				return err
			}
			want = record.References(r)
		}
		rows, err := ownedRows(t.kv, h)
		if err != nil {
			return err
		}
		if msg := diffRefs(want, rows); msg != "" {
			return inconsistency("commit", h, msg)
		}
	}
	return nil
}

// diffRefs describes how stored rows differ from the wanted references, or
// returns "" when they agree.
func diffRefs(want []record.Ref, rows []refRow) string {
	stored := make(map[record.Handle]record.Kind, len(rows))
	for _, row := range rows {
		stored[row.Target] = row.TargetKind
	}
	for _, ref := range want {
		kind, ok := stored[ref.Handle]
		if !ok {
			return fmt.Sprintf("missing reference to %s %s", ref.Kind, ref.Handle)
		}
		if kind != ref.Kind {
			return fmt.Sprintf("reference to %s stored as %s, record says %s", ref.Handle, kind, ref.Kind)
		}
		delete(stored, ref.Handle)
	}
	for h, kind := range stored {
		return fmt.Sprintf("stale reference to %s %s", kind, h)
	}
	return ""
}
