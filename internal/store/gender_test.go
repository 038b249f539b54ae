package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/kv"
	"github.com/roach88/kinstore/internal/record"
)

func gendered(first string, g record.Gender) *record.Person {
	p := newPerson(first, "Smith")
	p.Gender = g
	return p
}

func TestGenderStats_FollowCommits(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		john := add(t, s, gendered("John", record.GenderMale))
		add(t, s, gendered("John Paul", record.GenderMale))
		add(t, s, gendered("Mary?", record.GenderFemale))
		add(t, s, gendered("", record.GenderMale))

		assert.Equal(t, GenderCount{Male: 2}, s.GenderStats("John"))
		assert.Equal(t, GenderCount{Male: 2}, s.GenderStats("John Henry"))
		assert.Equal(t, GenderCount{Female: 1}, s.GenderStats("Mary"))
		assert.Zero(t, s.GenderStats(""))

		p, err := s.GetPerson(ctx, john)
		require.NoError(t, err)
		p.Gender = record.GenderUnknown
		update(t, s, p)
		assert.Equal(t, GenderCount{Male: 1, Unknown: 1}, s.GenderStats("John"))

		txn := begin(t, s, "remove")
		require.NoError(t, s.RemovePerson(ctx, txn, john))
		commit(t, txn)
		assert.Equal(t, GenderCount{Male: 1}, s.GenderStats("John"))
		requireConsistent(t, s)
	})
}

func TestGenderStats_AbortDiscards(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	add(t, s, gendered("Anne", record.GenderFemale))

	txn := begin(t, s, "abandoned")
	_, err := s.AddPerson(ctx, txn, gendered("Anne", record.GenderFemale))
	require.NoError(t, err)
	require.NoError(t, txn.Abort())

	assert.Equal(t, GenderCount{Female: 1}, s.GenderStats("Anne"))
	requireConsistent(t, s)
}

func TestGenderStats_UndoRedo(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	h := add(t, s, gendered("Ada", record.GenderFemale))

	p, err := s.GetPerson(ctx, h)
	require.NoError(t, err)
	p.PrimaryName.First = "Augusta"
	update(t, s, p)
	assert.Zero(t, s.GenderStats("Ada"))
	assert.Equal(t, GenderCount{Female: 1}, s.GenderStats("Augusta"))

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, GenderCount{Female: 1}, s.GenderStats("Ada"))
	assert.Zero(t, s.GenderStats("Augusta"))
	requireConsistent(t, s)

	_, err = s.Redo(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.GenderStats("Ada"))
	assert.Equal(t, GenderCount{Female: 1}, s.GenderStats("Augusta"))
	requireConsistent(t, s)

	_, err = s.Undo(ctx)
	require.NoError(t, err)
	_, err = s.Undo(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.GenderStats("Ada"))
	requireConsistent(t, s)
}

func TestGenderStats_Batch(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	add(t, s, gendered("Carl", record.GenderMale))

	txn := begin(t, s, "import", Batch())
	for range 3 {
		_, err := s.AddPerson(ctx, txn, gendered("Carl", record.GenderMale))
		require.NoError(t, err)
	}
	commit(t, txn)
	assert.Equal(t, GenderCount{Male: 4}, s.GenderStats("Carl"))
	requireConsistent(t, s)
}

func TestGenderStats_PersistAndRebuild(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openTestStore(t, dir)
	add(t, s, gendered("Eve", record.GenderFemale))
	add(t, s, gendered("Eve", record.GenderFemale))
	require.NoError(t, s.Close())

	s = openTestStore(t, dir)
	assert.Equal(t, GenderCount{Female: 2}, s.GenderStats("Eve"))

	rawUpdate(t, s, func(tx kv.Txn) error {
		return putMeta(tx, metaGenderStats, genderStats{"Eve": {Male: 5}, "Ghost": {Unknown: 1}})
	})
	report, err := s.Check(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Problems, 2)

	require.NoError(t, s.RebuildSecondary(ctx, nil))
	assert.Equal(t, GenderCount{Female: 2}, s.GenderStats("Eve"))
	assert.Zero(t, s.GenderStats("Ghost"))
	requireConsistent(t, s)
}

func TestGenderStats_CheckDuringTransaction(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	txn := begin(t, s, "open")
	defer txn.Abort()
	_, err := s.AddPerson(ctx, txn, gendered("Ivo", record.GenderMale))
	require.NoError(t, err)
	requireConsistent(t, s)
}

func TestGuessGender(t *testing.T) {
	s := &Store{genderStats: genderStats{
		"Al":    {Male: 3},
		"Bea":   {Female: 1},
		"Chris": {Male: 2, Female: 2},
		"Dana":  {Male: 1, Female: 3, Unknown: 1},
		"Eli":   {Male: 5, Female: 1, Unknown: 2},
		"Fay":   {Unknown: 2},
	}}
	tests := []struct {
		name string
		want record.Gender
	}{
		{"Al", record.GenderMale},
		{"Al Bert", record.GenderMale},
		{"Bea", record.GenderFemale},
		{"Chris", record.GenderUnknown},
		{"Dana", record.GenderFemale},
		{"Eli", record.GenderMale},
		{"Fay", record.GenderUnknown},
		{"Nobody", record.GenderUnknown},
		{"", record.GenderUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.GuessGender(tt.name))
		})
	}
}
