package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Clone_DeepCopiesNested(t *testing.T) {
	s := State{
		"count": 1,
		"nested": map[string]any{
			"inner": []any{1, 2, 3},
		},
	}

	c := s.Clone()
	c["count"] = 2
	c["nested"].(map[string]any)["inner"].([]any)[0] = 99

	assert.Equal(t, 1, s["count"])
	assert.Equal(t, 1, s["nested"].(map[string]any)["inner"].([]any)[0])
}

func TestState_Clone_Nil(t *testing.T) {
	var s State
	c := s.Clone()
	require.NotNil(t, c)
	assert.Empty(t, c)
}

func TestState_Merge_ShallowAndAdditive(t *testing.T) {
	s := State{"b": 2}
	s.Merge(State{"a": 1})
	assert.Equal(t, State{"a": 1, "b": 2}, s)

	s.Merge(State{"b": 3})
	assert.Equal(t, State{"a": 1, "b": 3}, s)
}

func TestState_Merge_DoesNotRecurse(t *testing.T) {
	s := State{"m": map[string]any{"keep": true, "x": 1}}
	s.Merge(State{"m": map[string]any{"x": 2}})

	// Shallow merge replaces the whole nested map.
	assert.Equal(t, map[string]any{"x": 2}, s["m"])
}

func TestState_Get(t *testing.T) {
	s := State{
		"quality_passed": true,
		"metrics":        map[string]any{"quality_score": 7.5},
	}

	v, ok := s.Get([]string{"quality_passed"})
	require.True(t, ok)
	assert.Equal(t, true, v)

	v, ok = s.Get([]string{"metrics", "quality_score"})
	require.True(t, ok)
	assert.Equal(t, 7.5, v)

	_, ok = s.Get([]string{"metrics", "missing"})
	assert.False(t, ok)

	_, ok = s.Get([]string{"quality_passed", "deeper"})
	assert.False(t, ok)
}
