package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/kinstore/internal/codec"
	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// Problem is one inconsistency found by Check.
type Problem struct {
	Table   string        `json:"table"`
	Kind    record.Kind   `json:"kind,omitempty"`
	Handle  record.Handle `json:"handle,omitempty"`
	Message string        `json:"message"`
}

func (p Problem) String() string {
	if p.Handle != "" {
		return fmt.Sprintf("%s: %s: %s", p.Table, p.Handle, p.Message)
	}
	return fmt.Sprintf("%s: %s", p.Table, p.Message)
}

// Report is the result of Check.
type Report struct {
	Records    int       `json:"records"`
	References int       `json:"references"`
	Problems   []Problem `json:"problems,omitempty"`
}

// OK reports whether no problem was found.
func (r *Report) OK() bool { return len(r.Problems) == 0 }

// Err returns a ReferentialInconsistency summarising the problems, or nil.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	lines := make([]string, 0, len(r.Problems))
	for _, p := range r.Problems {
		lines = append(lines, p.String())
	}
	return inconsistency("check", "", fmt.Sprintf("%d problem(s): %s", len(r.Problems), strings.Join(lines, "; ")))
}

// maxProblems bounds the report so a badly damaged store still yields a
// readable one.
const maxProblems = 1000

type checker struct {
	tx     kv.Txn
	report *Report
	gender genderStats

	// pending is the tally change of the open transaction, not yet saved.
	pending genderStats
}

func (c *checker) problem(table string, kind record.Kind, h record.Handle, format string, args ...any) {
	if len(c.report.Problems) >= maxProblems {
		return
	}
	c.report.Problems = append(c.report.Problems, Problem{Table: table, Kind: kind, Handle: h, Message: fmt.Sprintf(format, args...)})
}

// Check verifies every derived structure against the primary tables without
// changing anything: each record decodes, its owned reference rows equal
// its references, both reference indices agree with the main table, every
// index entry agrees with its record in both directions, and the stored
// gender tally matches the person table.
//
// Engine failures are returned as errors. Inconsistencies are collected in
// the report; Report.Err turns them into a ReferentialInconsistency.
func (s *Store) Check(ctx context.Context) (*Report, error) {
	if s.active != nil && s.active.batch {
		return nil, ErrIndexDetached
	}
	report := &Report{}
	err := s.view(ctx, func(tx kv.Txn) error {
		c := &checker{tx: tx, report: report, gender: genderStats{}}
		if s.active != nil {
			c.pending = s.active.gender
		}
		for _, k := range record.Kinds() {
			if err := c.checkRecords(k); err != nil {
				return err
			}
		}
		for _, ix := range indexes {
			if err := c.checkIndex(ix); err != nil {
				return err
			}
		}
		if err := c.checkRefMain(); err != nil {
			return err
		}
		if err := c.checkRefIndex(tableRefByOwner, true); err != nil {
			return err
		}
		if err := c.checkRefIndex(tableRefByTarget, false); err != nil {
			return err
		}
		c.checkGenderStats()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}
	if !report.OK() {
		s.log.Warn("store check found problems", "problems", len(report.Problems))
	}
	return report, nil
}

// checkRecords verifies decoding, index entries and owned references of
// every record of kind.
func (c *checker) checkRecords(kind record.Kind) error {
	ixs := indexesFor(kind)
	cur := c.tx.Cursor(primaryTable(kind), kv.CursorOptions{PageSize: cursorPageRecords})
	defer cur.Close()
	for cur.Next() {
		c.report.Records++
		h := record.Handle(cur.Key())
		data := cur.Value()
		if stored, err := codec.PeekKind(data); err == nil && stored != kind {
			c.problem(primaryTable(kind), kind, h, "holds a %s record", stored)
			continue
		}
		r, err := decodeRecord("check", kind, h, data)
		if err != nil {
			c.problem(primaryTable(kind), kind, h, "undecodable: %v", err)
			continue
		}
		if r.Head().Handle != h {
			c.problem(primaryTable(kind), kind, h, "record carries handle %q", r.Head().Handle)
		}
		if p, ok := r.(*record.Person); ok {
			c.gender.add(p, 1)
		}
		for _, ix := range ixs {
			key, ok, err := indexKey(ix, h, data)
			if err != nil || !ok {
				continue
			}
			found, err := hasPair(c.tx, ix.Name, []byte(key), []byte(h))
			if err != nil {
				return err
			}
			if !found {
				c.problem(ix.Name, kind, h, "missing index entry %q", key)
			}
		}
		rows, err := ownedRows(c.tx, h)
		if err != nil {
			if IsReferentialInconsistency(err) {
				c.problem(tableRefByOwner, kind, h, "%v", err)
				continue
			}
			return err
		}
		if msg := diffRefs(record.References(r), rows); msg != "" {
			c.problem(tableRefMain, kind, h, "%s", msg)
		}
		for _, row := range rows {
			if row.OwnerKind != kind {
				c.problem(tableRefMain, kind, h, "reference to %s stored with owner kind %s", row.Target, row.OwnerKind)
			}
		}
	}
	return cur.Err()
}

// checkIndex verifies that every entry of ix names a record with that key.
func (c *checker) checkIndex(ix Index) error {
	cur := c.tx.Cursor(ix.Name, kv.CursorOptions{PageSize: cursorPageRecords})
	defer cur.Close()
	for cur.Next() {
		key, h := string(cur.Key()), record.Handle(cur.Value())
		data, err := getPrimary(c.tx, ix.Kind, h)
		if err != nil {
			return err
		}
		if data == nil {
			c.problem(ix.Name, ix.Kind, h, "entry %q names a missing record", key)
			continue
		}
		want, ok, err := indexKey(ix, h, data)
		if err != nil {
			continue
		}
		if !ok || want != key {
			c.problem(ix.Name, ix.Kind, h, "entry %q, record has %q", key, want)
		}
	}
	return cur.Err()
}

// checkRefMain verifies every main-table row: it is well formed, its owner
// exists and both indices hold it.
func (c *checker) checkRefMain() error {
	cur := c.tx.Cursor(tableRefMain, kv.CursorOptions{PageSize: cursorPageRecords})
	defer cur.Close()
	for cur.Next() {
		c.report.References++
		key := cur.Key()
		owner, target, ok := splitRefKey(key)
		if !ok {
			c.problem(tableRefMain, 0, "", "malformed key %q", key)
			continue
		}
		ownerKind, _, ok := parseRefValue(cur.Value())
		if !ok {
			c.problem(tableRefMain, 0, owner, "malformed value for reference to %s", target)
			continue
		}
		exists, err := hasKey(c.tx, primaryTable(ownerKind), []byte(owner))
		if err != nil {
			return err
		}
		if !exists {
			c.problem(tableRefMain, ownerKind, owner, "reference to %s owned by a missing record", target)
		}
		for _, idx := range []struct {
			table string
			key   record.Handle
		}{{tableRefByOwner, owner}, {tableRefByTarget, target}} {
			found, err := hasPair(c.tx, idx.table, []byte(idx.key), key)
			if err != nil {
				return err
			}
			if !found {
				c.problem(idx.table, ownerKind, owner, "missing index row for reference to %s", target)
			}
		}
	}
	return cur.Err()
}

// checkRefIndex verifies that every row of a reference index points at a
// main-table row keyed by the right handle.
func (c *checker) checkRefIndex(table string, byOwner bool) error {
	cur := c.tx.Cursor(table, kv.CursorOptions{PageSize: cursorPageRecords})
	defer cur.Close()
	for cur.Next() {
		h, key := record.Handle(cur.Key()), cur.Value()
		owner, target, ok := splitRefKey(key)
		if !ok {
			c.problem(table, 0, h, "malformed reference key %q", key)
			continue
		}
		if (byOwner && owner != h) || (!byOwner && target != h) {
			c.problem(table, 0, h, "row filed under the wrong handle (%s -> %s)", owner, target)
		}
		exists, err := hasKey(c.tx, tableRefMain, key)
		if err != nil {
			return err
		}
		if !exists {
			c.problem(table, 0, h, "row for %s -> %s has no main entry", owner, target)
		}
	}
	return cur.Err()
}
