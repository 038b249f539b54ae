package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_DeleteUndo(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/delete_undo.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

// TestRunWithGolden_BatchRebuild runs the badger scenario on SQLite too: the
// snapshot does not depend on the backend.
func TestRunWithGolden_BatchRebuild(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/batch_rebuild.yaml")
	require.NoError(t, err)

	for _, backend := range []string{"badger", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			s.Backend = backend
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestMarshalSnapshot_EndsWithNewline(t *testing.T) {
	data, err := MarshalSnapshot("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"scenario_name\": \"empty\",\n  \"pass\": true,\n  \"trace\": [],\n  \"references\": {}\n}\n", string(data))
}
