package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

// progressEvery is how many records pass between progress callbacks.
const progressEvery = 1000

// RebuildSecondary drops every secondary index and all three reference map
// tables, then refills them by streaming each primary table once. It runs in
// one engine transaction, so an interrupted rebuild leaves the old tables in
// place and can simply be retried. Running it twice yields identical tables.
//
// progress, when non-nil, is called with the number of records processed
// and the total.
func (s *Store) RebuildSecondary(ctx context.Context, progress func(done, total int)) error {
	if s.active != nil {
		return ErrTransactionOpen
	}
	var (
		names  []string
		gender genderStats
	)
	err := s.update(ctx, func(tx kv.Txn) error {
		if err := s.rebuildSecondary(tx, progress); err != nil {
			return err
		}
		var err error
		if names, err = scanSurnames(tx); err != nil {
			return err
		}
		gender, err = loadGenderStats(tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	s.surnames.set(names)
	s.genderStats = gender
	return nil
}

func (s *Store) rebuildSecondary(tx kv.Txn, progress func(done, total int)) error {
	start := time.Now()
	for _, spec := range secondaryTables() {
		if err := tx.DropTable(spec.Name); err != nil {
			return fmt.Errorf("drop %s: %w", spec.Name, err)
		}
		if err := tx.CreateTable(spec); err != nil {
			return fmt.Errorf("create %s: %w", spec.Name, err)
		}
	}

	total := 0
	for _, k := range record.Kinds() {
		n, err := tx.Count(primaryTable(k))
		if err != nil {
			return err
		}
		total += n
	}

	done := 0
	gender := genderStats{}
	for _, k := range record.Kinds() {
		if err := s.rebuildKind(tx, k, gender, func() {
			done++
			if progress != nil && (done%progressEvery == 0 || done == total) {
				progress(done, total)
			}
		}); err != nil {
			return err
		}
	}
	if err := putMeta(tx, metaGenderStats, gender); err != nil {
		return err
	}

	elapsed := time.Since(start)
	s.metrics.rebuildDuration.Observe(elapsed.Seconds())
	s.log.Info("secondary structures rebuilt", "records", done, "duration", elapsed)
	return nil
}

// rebuildKind feeds every record of kind through the association functions
// and inserts its references with nothing existing. Persons are tallied
// into gender.
func (s *Store) rebuildKind(tx kv.Txn, kind record.Kind, gender genderStats, step func()) error {
	ixs := indexesFor(kind)
	c := tx.Cursor(primaryTable(kind), kv.CursorOptions{PageSize: cursorPageRecords})
	defer c.Close()
	for c.Next() {
		h := record.Handle(c.Key())
		data := c.Value()
		for _, ix := range ixs {
			key, ok, err := indexKey(ix, h, data)
			if err != nil {
				return err
			}
			if ok {
				if err := tx.Put(ix.Name, []byte(key), []byte(h)); err != nil {
					return err
				}
			}
		}
		r, err := decodeRecord("rebuild", kind, h, data)
		if err != nil {
			return err
		}
		if p, ok := r.(*record.Person); ok {
			gender.add(p, 1)
		}
		for _, ref := range record.References(r) {
			row := refRow{OwnerKind: kind, Owner: h, TargetKind: ref.Kind, Target: ref.Handle}
			if err := s.addRef(tx, row); err != nil {
				return err
			}
		}
		step()
	}
	return c.Err()
}
