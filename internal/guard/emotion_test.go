package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyEmotions(t *testing.T) {
	t.Run("empty text scores all zero", func(t *testing.T) {
		scores := ClassifyEmotions("")
		for emotion, score := range scores {
			assert.Zero(t, score, emotion)
		}
	})

	t.Run("no keywords collapses to pure neutral", func(t *testing.T) {
		scores := ClassifyEmotions("the carpenter measured twice and cut once")
		assert.InDelta(t, 1.0, scores["neutral"], 1e-9)
		assert.Zero(t, scores["joy"])
		assert.Zero(t, scores["fear"])
	})

	t.Run("fearful text scores fear with sadness bleed", func(t *testing.T) {
		scores := ClassifyEmotions("terrified scared fear horror dread")
		assert.InDelta(t, 0.8, scores["fear"], 1e-9)
		assert.Greater(t, scores["sadness"], 0.0)
		assert.InDelta(t, baseNeutral, scores["neutral"], 1e-9)
	})

	t.Run("scores capped at one", func(t *testing.T) {
		scores := ClassifyEmotions("happy joyful glad surprised amazed shocked stunned")
		for emotion, score := range scores {
			assert.LessOrEqual(t, score, 1.0, emotion)
		}
	})
}

func TestCosineDelta(t *testing.T) {
	t.Run("identical vectors score zero", func(t *testing.T) {
		v := [7]float64{0.2, 0, 0, 0.5, 0, 0, 0.3}
		assert.InDelta(t, 0.0, CosineDelta(v, v), 1e-9)
	})

	t.Run("zero vector scores zero not NaN", func(t *testing.T) {
		var zero [7]float64
		other := [7]float64{0, 0, 0, 0, 0, 0, 1}
		assert.Zero(t, CosineDelta(zero, other))
		assert.Zero(t, CosineDelta(other, zero))
		assert.Zero(t, CosineDelta(zero, zero))
	})

	t.Run("orthogonal vectors score one", func(t *testing.T) {
		a := [7]float64{1, 0, 0, 0, 0, 0, 0}
		b := [7]float64{0, 1, 0, 0, 0, 0, 0}
		assert.InDelta(t, 1.0, CosineDelta(a, b), 1e-9)
	})
}

func TestEmotionDelta(t *testing.T) {
	t.Run("identical spans score zero", func(t *testing.T) {
		text := "she was happy and thrilled about the celebration"
		assert.InDelta(t, 0.0, EmotionDelta(text, text), 1e-9)
	})

	t.Run("both empty score zero", func(t *testing.T) {
		assert.Zero(t, EmotionDelta("", ""))
	})

	t.Run("neutral to strong fear is amplified", func(t *testing.T) {
		prev := "an ordinary calm routine day like any other"
		curr := "terrified scared fear horror dread"
		plainDelta := CosineDelta(
			EmotionVector(ClassifyEmotions(prev)),
			EmotionVector(ClassifyEmotions(curr)))
		assert.Greater(t, EmotionDelta(prev, curr), plainDelta)
	})
}

func TestEmotionGuard(t *testing.T) {
	g := NewEmotionGuard(Deps{})
	ctx := context.Background()

	require.Equal(t, "emotion_guard", g.Name())
	require.Equal(t, KindSpanPair, g.Kind())

	t.Run("smooth transition passes", func(t *testing.T) {
		res, err := g.Check(ctx, &Input{
			PrevText: "she smiled, happy and content with the cheerful morning",
			Text:     "still delighted, she laughed at the wonderful view",
		})
		require.NoError(t, err)
		assert.True(t, res.Passed)
		assert.Contains(t, res.Details, "emotion_delta")
	})

	t.Run("abrupt jump raises emotion_jump", func(t *testing.T) {
		_, err := g.Check(ctx, &Input{
			PrevText: "an ordinary calm routine day like any other",
			Text:     "terrified scared fear horror dread",
		})
		require.Error(t, err)

		var v *Violation
		require.ErrorAs(t, err, &v)
		assert.Equal(t, "emotion_guard", v.GuardName)
		assert.Equal(t, "Emotion jump", v.Message)
		require.Contains(t, v.Flags, "emotion_jump")
		detail := v.Flags["emotion_jump"].(map[string]any)
		assert.Greater(t, detail["value"].(float64), emotionDeltaThreshold)
		assert.Equal(t, emotionDeltaThreshold, detail["threshold"])
	})
}
