package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyguard/internal/storage"
)

func TestAnchorKeywords(t *testing.T) {
	t.Run("strips trailing particles", func(t *testing.T) {
		kws := AnchorKeywords("주인공이 마을에 등장")
		assert.Contains(t, kws, "주인공")
		assert.Contains(t, kws, "등장")
		assert.NotContains(t, kws, "주인공이")
	})

	t.Run("drops single characters and stopwords", func(t *testing.T) {
		kws := AnchorKeywords("그 는 비밀의 문")
		assert.NotContains(t, kws, "그")
		assert.NotContains(t, kws, "는")
	})

	t.Run("falls back to whole goal", func(t *testing.T) {
		assert.Equal(t, []string{"그"}, AnchorKeywords("그"))
	})
}

func TestAnchorGuard(t *testing.T) {
	ctx := context.Background()

	newGuard := func(t *testing.T, anchors []Anchor) Guard {
		t.Helper()
		store := storage.NewFileStore(t.TempDir())
		if anchors != nil {
			require.NoError(t, store.Save(ctx, "default", anchorsDoc, anchors))
		}
		return NewAnchorGuard(Deps{Project: "default", Store: store})
	}

	heroAnchor := []Anchor{{ID: "a001", Goal: "주인공 등장", AnchorEp: 12}}

	t.Run("no anchors file passes", func(t *testing.T) {
		g := newGuard(t, nil)
		res, err := g.Check(ctx, &Input{Episode: 12, Text: "아무 일도 없었다"})
		require.NoError(t, err)
		assert.True(t, res.Passed)
	})

	t.Run("anchor found in window passes", func(t *testing.T) {
		g := newGuard(t, heroAnchor)
		res, err := g.Check(ctx, &Input{
			Episode: 12,
			Text:    "마침내 주인공이 무대 위로 걸어 나왔다.",
		})
		require.NoError(t, err)
		assert.True(t, res.Passed)
		assert.Equal(t, 1, res.Details["anchors_checked"])
	})

	t.Run("anchor missing in window raises anchor_compliance", func(t *testing.T) {
		g := newGuard(t, heroAnchor)
		for _, ep := range []int{11, 12, 13} {
			_, err := g.Check(ctx, &Input{Episode: ep, Text: "조용한 하루였다."})
			require.Error(t, err, "episode %d", ep)

			var v *Violation
			require.ErrorAs(t, err, &v)
			assert.Equal(t, "anchor_guard", v.GuardName)
			assert.Contains(t, v.Message, "Anchor compliance failure")
			assert.Contains(t, v.Flags, "anchor_compliance")
		}
	})

	t.Run("episodes outside the window are not checked", func(t *testing.T) {
		g := newGuard(t, heroAnchor)
		for _, ep := range []int{10, 14} {
			res, err := g.Check(ctx, &Input{Episode: ep, Text: "조용한 하루였다."})
			require.NoError(t, err, "episode %d", ep)
			assert.Equal(t, 0, res.Details["anchors_checked"])
		}
	})

	t.Run("incomplete anchors are skipped", func(t *testing.T) {
		g := newGuard(t, []Anchor{
			{ID: "a002", Goal: "", AnchorEp: 5},
			{ID: "a003", Goal: "결투 시작", AnchorEp: 0},
		})
		res, err := g.Check(ctx, &Input{Episode: 5, Text: "조용한 하루였다."})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Details["anchors_checked"])
	})
}
