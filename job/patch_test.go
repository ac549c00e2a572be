package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptUnmarshal(t *testing.T) {
	type doc struct {
		Output Opt[*string] `json:"output"`
		Error  Opt[*string] `json:"error"`
		Flag   Opt[bool]    `json:"flag"`
	}

	t.Run("AbsentFieldStaysAbsent", func(t *testing.T) {
		var d doc
		require.NoError(t, json.Unmarshal([]byte(`{}`), &d))
		assert.False(t, d.Output.Valid)
		assert.False(t, d.Error.Valid)
		assert.False(t, d.Flag.Valid)
	})

	t.Run("ExplicitNullIsPresent", func(t *testing.T) {
		var d doc
		require.NoError(t, json.Unmarshal([]byte(`{"error": null}`), &d))
		assert.True(t, d.Error.Valid)
		assert.Nil(t, d.Error.Value)
		assert.False(t, d.Output.Valid)
	})

	t.Run("ValueIsPresent", func(t *testing.T) {
		var d doc
		require.NoError(t, json.Unmarshal([]byte(`{"output": "hi\n", "flag": true}`), &d))
		require.True(t, d.Output.Valid)
		require.NotNil(t, d.Output.Value)
		assert.Equal(t, "hi\n", *d.Output.Value)
		assert.True(t, d.Flag.Valid)
		assert.True(t, d.Flag.Value)
	})
}

func TestPatchIsZero(t *testing.T) {
	assert.True(t, Patch{}.IsZero())
	assert.False(t, Patch{Status: Set(StatusRunning)}.IsZero())
	assert.False(t, Patch{EmbeddingsGenerated: Set(true)}.IsZero())

	// Present-nil counts as a field to persist.
	assert.False(t, Patch{Error: Set[*string](nil)}.IsZero())
}
