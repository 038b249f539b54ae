package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinstore/internal/record"
	"github.com/roach88/kinstore/internal/store"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/delete_undo.yaml")
	require.NoError(t, err)

	assert.Equal(t, "delete_undo", s.Name)
	require.Len(t, s.Fixtures, 1)
	assert.Equal(t, filepath.Join("testdata", "fixtures", "household.yaml"), s.Fixtures[0],
		"fixture paths are resolved against the scenario file")

	require.Len(t, s.Flow, 2)
	assert.Equal(t, OpCommit, s.Flow[0].op())
	assert.Equal(t, []RecordRef{{Kind: record.KindPerson, Handle: "ada"}}, s.Flow[0].Remove)
	assert.Equal(t, []ChangeSpec{{Kind: record.KindPerson, Handle: "ada", Action: store.ActionDelete}},
		s.Flow[0].Expect.Changes)
	assert.Equal(t, OpUndo, s.Flow[1].op())

	require.Len(t, s.Assertions, 6)
	assert.Equal(t, AssertBacklinks, s.Assertions[2].Type)
	assert.Equal(t, []record.Ref{
		{Kind: record.KindFamily, Handle: "f1"},
		{Kind: record.KindPerson, Handle: "ada"},
	}, s.Assertions[2].Refs)
}

func TestLoadScenario_AllTestdataScenariosLoad(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, p := range paths {
		_, err := LoadScenario(p)
		assert.NoError(t, err, p)
	}
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does_not_exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: misspelt key
flow:
  - undo: true
assertion:
  - type: consistent
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_Invalid(t *testing.T) {
	base := "name: n\ndescription: d\n"
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: d\nflow: [{undo: true}]\nassertions: [{type: consistent}]\n", "name is required"},
		{"missing description", "name: n\nflow: [{undo: true}]\nassertions: [{type: consistent}]\n", "description is required"},
		{"unknown backend", base + "backend: lmdb\nflow: [{undo: true}]\nassertions: [{type: consistent}]\n", "unknown backend"},
		{"empty flow", base + "assertions: [{type: consistent}]\n", "flow list is required"},
		{"empty assertions", base + "flow: [{undo: true}]\n", "assertions list is required"},
		{"missing fixture", base + "fixtures: [nope.yaml]\nflow: [{undo: true}]\nassertions: [{type: consistent}]\n", "fixture file not found"},
		{"two operations", base + "flow: [{undo: true, redo: true}]\nassertions: [{type: consistent}]\n", "exactly one of"},
		{"no operation", base + "flow: [{expect: {error: not_found}}]\nassertions: [{type: consistent}]\n", "exactly one of"},
		{"empty transaction", base + "flow: [{transaction: t}]\nassertions: [{type: consistent}]\n", "has no add"},
		{"batch without transaction", base + "flow: [{undo: true, batch: true}]\nassertions: [{type: consistent}]\n", "need a transaction"},
		{"update without handle", base + "flow: [{transaction: t, update: [{kind: note}]}]\nassertions: [{type: consistent}]\n", "handle is required"},
		{"remove without handle", base + "flow: [{transaction: t, remove: [{kind: note}]}]\nassertions: [{type: consistent}]\n", "kind and handle are required"},
		{"unknown error class", base + "flow: [{undo: true, expect: {error: oops}}]\nassertions: [{type: consistent}]\n", "unknown error class"},
		{"unknown assertion", base + "flow: [{undo: true}]\nassertions: [{type: vibes}]\n", "unknown assertion type"},
		{"backlinks without target", base + "flow: [{undo: true}]\nassertions: [{type: backlinks}]\n", "target is required"},
		{"count without count", base + "flow: [{undo: true}]\nassertions: [{type: count, kind: person}]\n", "count must be non-negative"},
		{"count without kind", base + "flow: [{undo: true}]\nassertions: [{type: count, count: 1}]\n", "kind is required"},
		{"by_id incomplete", base + "flow: [{undo: true}]\nassertions: [{type: by_id, kind: person, id: I1}]\n", "kind, id and handle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_UnknownKind(t *testing.T) {
	path := writeScenario(t, `
name: n
description: d
flow:
  - transaction: t
    add:
      - {kind: citation}
assertions:
  - type: consistent
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown record kind")
}
