package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/fixture"
	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

func count(n int) *int { return &n }

func mustRun(t *testing.T, s *Scenario) *Result {
	t.Helper()
	require.NoError(t, validateScenario(s))
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	for _, path := range []string{
		"testdata/scenarios/delete_undo.yaml",
		"testdata/scenarios/batch_rebuild.yaml",
		"testdata/scenarios/reference_updates.yaml",
	} {
		t.Run(path, func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			for _, backend := range []string{store.BackendSQLite, store.BackendBadger} {
				s.Backend = backend
				result, err := Run(context.Background(), s)
				require.NoError(t, err)
				assert.True(t, result.Pass, "%s: %v", backend, result.Errors)
			}
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/reference_updates.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := MarshalSnapshot(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	result := mustRun(t, &Scenario{
		Name:        "unexpected",
		Description: "removing a missing record without expecting it",
		Flow: []Step{{
			Transaction: "remove",
			Remove:      []RecordRef{{Kind: record.KindNote, Handle: "missing"}},
		}},
		Assertions: []Assertion{{Type: AssertConsistent}},
	})
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[0]")
	assert.Contains(t, result.Errors[0], "Expected: success")
	assert.Equal(t, "not_found", result.Trace[0].Error)
}

func TestRun_MissingExpectedErrorFails(t *testing.T) {
	result := mustRun(t, &Scenario{
		Name:        "no error",
		Description: "expects an error that never comes",
		Flow: []Step{{
			Transaction: "add",
			Add:         []fixture.Record{{Kind: record.KindNote, Fields: map[string]any{"text": "n"}}},
			Expect:      &ExpectClause{Error: "not_found"},
		}},
		Assertions: []Assertion{{Type: AssertCount, Kind: record.KindNote, Count: count(1)}},
	})
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "not_found error")
}

func TestRun_ChangeMismatchFails(t *testing.T) {
	result := mustRun(t, &Scenario{
		Name:        "changes",
		Description: "wrong change list",
		Flow: []Step{{
			Transaction: "add",
			Add:         []fixture.Record{{Kind: record.KindNote, Fields: map[string]any{"handle": "n1"}}},
			Expect: &ExpectClause{Changes: []ChangeSpec{
				{Kind: record.KindNote, Handle: "n1", Action: store.ActionUpdate},
			}},
		}},
		Assertions: []Assertion{{Type: AssertConsistent}},
	})
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "update note n1")
	assert.Contains(t, result.Errors[0], "add note n1")
}

func TestRun_AbortLeavesNothing(t *testing.T) {
	result := mustRun(t, &Scenario{
		Name:        "abort",
		Description: "an aborted transaction changes nothing",
		Flow: []Step{{
			Transaction: "abandoned",
			Abort:       true,
			Add:         []fixture.Record{{Kind: record.KindPerson, Fields: map[string]any{"handle": "p"}}},
		}},
		Assertions: []Assertion{
			{Type: AssertRecordAbsent, Kind: record.KindPerson, Handle: "p"},
			{Type: AssertUndoDepth, Count: count(0)},
		},
	})
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, OpAbort, result.Trace[0].Op)
	assert.Empty(t, result.Trace[0].Changes)
}

func TestRun_RedoAfterUndo(t *testing.T) {
	result := mustRun(t, &Scenario{
		Name:        "redo",
		Description: "redo reapplies an undone transaction",
		Flow: []Step{
			{
				Transaction: "add",
				Add: []fixture.Record{{Kind: record.KindPerson, Fields: map[string]any{
					"handle":       "p",
					"primary_name": map[string]any{"surname": "Somerville"},
				}}},
			},
			{Undo: true, Expect: &ExpectClause{Changes: []ChangeSpec{
				{Kind: record.KindPerson, Handle: "p", Action: store.ActionDelete},
			}}},
			{Redo: true, Expect: &ExpectClause{Changes: []ChangeSpec{
				{Kind: record.KindPerson, Handle: "p", Action: store.ActionAdd},
			}}},
			{Redo: true, Expect: &ExpectClause{Error: "nothing_to_redo"}},
		},
		Assertions: []Assertion{
			{Type: AssertSurnames, Names: []string{"Somerville"}},
			{Type: AssertSurnameHandles, Surname: "Somerville", Handles: []record.Handle{"p"}},
			{Type: AssertByID, Kind: record.KindPerson, ID: "I0000", Handle: "p"},
			{Type: AssertUndoDepth, Count: count(1)},
		},
	})
	assert.True(t, result.Pass, result.Errors)
	assert.Len(t, result.Trace, 4)
}

func TestRun_UndoLimit(t *testing.T) {
	add := func(h string) Step {
		return Step{
			Transaction: "add " + h,
			Add:         []fixture.Record{{Kind: record.KindNote, Fields: map[string]any{"handle": h}}},
		}
	}
	result := mustRun(t, &Scenario{
		Name:        "limit",
		Description: "the undo stack is bounded",
		UndoLimit:   2,
		Flow:        []Step{add("a"), add("b"), add("c")},
		Assertions:  []Assertion{{Type: AssertUndoDepth, Count: count(2)}},
	})
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ReferenceMapCaptured(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/reference_updates.yaml")
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, map[record.Handle][]record.Ref{
		"f1": {
			{Kind: record.KindPerson, Handle: "b"},
			{Kind: record.KindEvent, Handle: "e1"},
		},
	}, result.References)
}
