package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCritique(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		c, err := parseCritique(`{"fun": 8, "logic": 6.5, "comment": "전개가 빠르다"}`)
		require.NoError(t, err)
		assert.Equal(t, 8.0, c.Fun)
		assert.Equal(t, 6.5, c.Logic)
		assert.Equal(t, "전개가 빠르다", c.Comment)
	})

	t.Run("fenced json", func(t *testing.T) {
		c, err := parseCritique("```json\n{\"fun\": 7, \"logic\": 9, \"comment\": \"ok\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, 7.0, c.Fun)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := parseCritique("재미있어요, 9점 드립니다")
		require.Error(t, err)
	})

	t.Run("scores out of range", func(t *testing.T) {
		_, err := parseCritique(`{"fun": 0, "logic": 11, "comment": ""}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})

	t.Run("missing fields are out of range", func(t *testing.T) {
		_, err := parseCritique(`{"comment": "only a comment"}`)
		require.Error(t, err)
	})
}

func TestNewGeminiScorerRequiresKey(t *testing.T) {
	_, err := NewGeminiScorer(t.Context(), "", "gemini-2.5-pro")
	require.Error(t, err)
}
