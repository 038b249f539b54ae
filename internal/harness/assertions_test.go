package harness

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/fixture"
	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
	"github.com/roach88/kinstore/internal/testutil"
)

// setupStore opens a store seeded with the household fixture.
func setupStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, t.TempDir(),
		store.WithHandleGenerator(testutil.NewSequentialHandles("h")),
		store.WithClock(testutil.NewClock().Now),
		store.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f, err := fixture.Load("testdata/fixtures/household.yaml")
	require.NoError(t, err)
	_, err = fixture.Apply(ctx, st, f, "household")
	require.NoError(t, err)
	return st
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	st := setupStore(t)
	errs := EvaluateAssertions(context.Background(), st, []Assertion{
		{Type: AssertBacklinks, Target: "ada", Refs: []record.Ref{{Kind: record.KindFamily, Handle: "f1"}}},
		{Type: AssertBacklinks, Target: "n1", Kinds: []record.Kind{record.KindFamily},
			Refs: []record.Ref{{Kind: record.KindFamily, Handle: "f1"}}},
		{Type: AssertReferences, Handle: "william", Refs: []record.Ref{{Kind: record.KindFamily, Handle: "f1"}}},
		{Type: AssertRecordExists, Kind: record.KindNote, Handle: "n1"},
		{Type: AssertRecordAbsent, Kind: record.KindNote, Handle: "n2"},
		{Type: AssertByID, Kind: record.KindFamily, ID: "F0001", Handle: "f1"},
		{Type: AssertSurnames, Names: []string{"King", "Lovelace"}},
		{Type: AssertSurnameHandles, Surname: "King", Handles: []record.Handle{"william"}},
		{Type: AssertCount, Kind: record.KindPerson, Count: count(2)},
		{Type: AssertUndoDepth, Count: count(1)},
		{Type: AssertConsistent},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	st := setupStore(t)
	tests := []struct {
		name      string
		assertion Assertion
		want      []string
	}{
		{
			name:      "backlinks",
			assertion: Assertion{Type: AssertBacklinks, Target: "ada"},
			want:      []string{"Assertion failed: backlinks", "Expected: backlinks of ada = []", "Actual: [family f1]"},
		},
		{
			name:      "references",
			assertion: Assertion{Type: AssertReferences, Handle: "n1", Refs: []record.Ref{{Kind: record.KindPerson, Handle: "ada"}}},
			want:      []string{"references of n1", "Actual: []"},
		},
		{
			name:      "record exists",
			assertion: Assertion{Type: AssertRecordExists, Kind: record.KindPerson, Handle: "byron"},
			want:      []string{"person byron exists = true", "exists = false"},
		},
		{
			name:      "record absent",
			assertion: Assertion{Type: AssertRecordAbsent, Kind: record.KindPerson, Handle: "ada"},
			want:      []string{"person ada exists = false"},
		},
		{
			name:      "by id missing",
			assertion: Assertion{Type: AssertByID, Kind: record.KindPerson, ID: "I9999", Handle: "ada"},
			want:      []string{"person I9999 = ada", "Actual: not found"},
		},
		{
			name:      "surnames",
			assertion: Assertion{Type: AssertSurnames, Names: []string{"Lovelace"}},
			want:      []string{`Actual: ["King" "Lovelace"]`},
		},
		{
			name:      "surname handles",
			assertion: Assertion{Type: AssertSurnameHandles, Surname: "Lovelace", Handles: []record.Handle{"william"}},
			want:      []string{`Actual: ["ada"]`},
		},
		{
			name:      "count",
			assertion: Assertion{Type: AssertCount, Kind: record.KindFamily, Count: count(3)},
			want:      []string{"Expected: 3 family records", "Actual: 1 family records"},
		},
		{
			name:      "undo depth",
			assertion: Assertion{Type: AssertUndoDepth, Count: count(0)},
			want:      []string{"Actual: 1 undo frames"},
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "vibes"},
			want:      []string{`unknown assertion type "vibes"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(context.Background(), st, []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			for _, w := range tt.want {
				assert.Contains(t, errs[0], w)
			}
		})
	}
}

func TestAssertConsistent_RefusedDuringBatch(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)

	// A batch transaction drops the by-target index; it is only rebuilt at
	// commit, so a check from inside the transaction sees it detached.
	txn, err := st.Begin(ctx, "import", store.Batch())
	require.NoError(t, err)
	defer txn.Abort()

	errs := EvaluateAssertions(ctx, st, []Assertion{{Type: AssertConsistent}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], store.ErrIndexDetached.Error())
}
