package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/roach88/kinstore/internal/fixture"
	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
	"github.com/roach88/kinstore/internal/testutil"
)

// Harness executes one scenario against one store.
type Harness struct {
	store  *store.Store
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh store in a temporary directory with
// sequential handles ("h0001", ...) and a deterministic clock, so two runs
// of the same scenario produce identical results.
//
// Execution flow:
// 1. Open a fresh store
// 2. Apply fixtures, one transaction each
// 3. Execute flow steps, validating expect clauses
// 4. Evaluate assertions and capture the reference map
//
// The returned error reports a scenario that could not be executed at all;
// failed expectations are recorded in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "kinstore-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	opts := []store.Option{
		store.WithHandleGenerator(testutil.NewSequentialHandles("h")),
		store.WithClock(testutil.NewClock().Now),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if scenario.Backend != "" {
		opts = append(opts, store.WithBackend(scenario.Backend))
	}
	if scenario.UndoLimit > 0 {
		opts = append(opts, store.WithUndoLimit(scenario.UndoLimit))
	}
	st, err := store.Open(ctx, dir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		logger: slog.Default().With("scenario", scenario.Name),
	}

	for _, path := range scenario.Fixtures {
		f, err := fixture.Load(path)
		if err != nil {
			return nil, err
		}
		if _, err := fixture.Apply(ctx, st, f, "fixture "+f.Description); err != nil {
			return nil, fmt.Errorf("failed to apply fixture %s: %w", path, err)
		}
	}

	result := NewResult()
	for i := range scenario.Flow {
		if err := h.executeStep(ctx, i, &scenario.Flow[i], result); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, st, scenario.Assertions) {
		result.AddError(msg)
	}

	refs, err := referenceMap(ctx, st)
	if err != nil {
		return nil, err
	}
	result.References = refs
	return result, nil
}

// executeStep runs one step, traces it and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, i int, step *Step, result *Result) error {
	var (
		changes []store.Change
		err     error
	)
	op := step.op()
	switch op {
	case OpUndo:
		changes, err = h.store.Undo(ctx)
	case OpRedo:
		changes, err = h.store.Redo(ctx)
	case OpRebuild:
		err = h.store.RebuildSecondary(ctx, nil)
	default:
		changes, err = h.transaction(ctx, step)
	}
	if h.store.InTransaction() {
		return errors.New("step left a transaction open")
	}
	result.AddTrace(i, op, step.Transaction, changes, err)

	var expect ExpectClause
	if step.Expect != nil {
		expect = *step.Expect
	}
	if msg := checkOutcome(i, expect, changes, err); msg != "" {
		result.AddError(msg)
	}

	h.logger.Debug("flow step completed",
		"step", i,
		"op", op,
		"changes", len(changes),
		"error", err,
	)
	return nil
}

// transaction applies the step's mutations in one transaction. On a
// mutation failure the transaction is aborted and the failure returned.
func (h *Harness) transaction(ctx context.Context, step *Step) ([]store.Change, error) {
	var opts []store.BeginOption
	if step.Batch {
		opts = append(opts, store.Batch())
	}
	txn, err := h.store.Begin(ctx, step.Transaction, opts...)
	if err != nil {
		return nil, err
	}

	err = h.mutate(ctx, txn, step)
	if err != nil || step.Abort {
		if !store.IsTransactionAbort(err) {
			if aerr := txn.Abort(); aerr != nil && err == nil {
				err = aerr
			}
		}
		return nil, err
	}
	return txn.Commit()
}

func (h *Harness) mutate(ctx context.Context, txn *store.Transaction, step *Step) error {
	for _, r := range step.Add {
		rec, err := r.Build()
		if err != nil {
			return err
		}
		if _, err := h.store.Add(ctx, txn, rec); err != nil {
			return err
		}
	}
	for _, r := range step.Update {
		rec, err := r.Build()
		if err != nil {
			return err
		}
		if err := h.store.CommitRecord(ctx, txn, rec, time.Time{}); err != nil {
			return err
		}
	}
	for _, r := range step.Remove {
		if err := h.store.Remove(ctx, txn, r.Kind, r.Handle); err != nil {
			return err
		}
	}
	return nil
}

// checkOutcome compares a step's outcome with its expect clause and
// returns a failure message, or "" on a match.
func checkOutcome(i int, expect ExpectClause, changes []store.Change, err error) string {
	if expect.Error == "" && err != nil {
		return (&AssertionError{
			Type:     fmt.Sprintf("flow[%d]", i),
			Expected: "success",
			Actual:   err.Error(),
		}).Error()
	}
	if expect.Error != "" {
		for _, c := range errorClasses {
			if c.name != expect.Error {
				continue
			}
			if err == nil || !c.match(err) {
				return (&AssertionError{
					Type:     fmt.Sprintf("flow[%d]", i),
					Expected: expect.Error + " error",
					Actual:   fmt.Sprint(err),
				}).Error()
			}
		}
		return ""
	}
	if expect.Changes == nil {
		return ""
	}
	got := make([]ChangeSpec, len(changes))
	for j, c := range changes {
		got[j] = ChangeSpec{Kind: c.Kind, Handle: c.Handle, Action: c.Action}
	}
	if !slices.Equal(got, expect.Changes) {
		return (&AssertionError{
			Type:     fmt.Sprintf("flow[%d]", i),
			Expected: fmt.Sprintf("changes %v", formatChanges(expect.Changes)),
			Actual:   fmt.Sprintf("changes %v", formatChanges(got)),
		}).Error()
	}
	return ""
}

func formatChanges(cs []ChangeSpec) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = fmt.Sprintf("%s %s %s", c.Action, c.Kind, c.Handle)
	}
	return out
}

// referenceMap reads the reference map owner by owner, in kind then
// handle order.
func referenceMap(ctx context.Context, st *store.Store) (map[record.Handle][]record.Ref, error) {
	var owners []record.Handle
	for _, kind := range record.Kinds() {
		for h, err := range st.Handles(ctx, kind) {
			if err != nil {
				return nil, err
			}
			owners = append(owners, h)
		}
	}
	out := map[record.Handle][]record.Ref{}
	for _, h := range owners {
		refs, err := st.References(ctx, h)
		if err != nil {
			return nil, err
		}
		if len(refs) > 0 {
			out[h] = refs
		}
	}
	return out, nil
}
