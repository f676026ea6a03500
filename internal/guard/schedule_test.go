package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyguard/internal/foreshadow"
	"storyguard/internal/storage"
)

func TestScheduleGuard(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (Guard, *foreshadow.Ledger) {
		t.Helper()
		store := storage.NewFileStore(t.TempDir())
		ledger := foreshadow.NewLedger(store, "default", 250)
		return NewScheduleGuardWithLedger(ledger), ledger
	}

	t.Run("empty ledger passes", func(t *testing.T) {
		g, _ := setup(t)
		require.Equal(t, "schedule_guard", g.Name())
		require.Equal(t, KindEpisodeOnly, g.Kind())

		res, err := g.Check(ctx, &Input{Episode: 25})
		require.NoError(t, err)
		assert.True(t, res.Passed)
	})

	t.Run("unresolved before due passes", func(t *testing.T) {
		g, ledger := setup(t)
		rec, err := ledger.Schedule(ctx, "숨겨진 편지", 5)
		require.NoError(t, err)

		res, err := g.Check(ctx, &Input{Episode: rec.Due})
		require.NoError(t, err)
		assert.True(t, res.Passed)
	})

	t.Run("overdue unresolved raises overdue_foreshadows", func(t *testing.T) {
		g, ledger := setup(t)
		rec, err := ledger.Schedule(ctx, "숨겨진 편지", 5)
		require.NoError(t, err)

		_, err = g.Check(ctx, &Input{Episode: rec.Due + 5})
		require.Error(t, err)

		var v *Violation
		require.ErrorAs(t, err, &v)
		assert.Equal(t, "schedule_guard", v.GuardName)
		assert.Contains(t, v.Message, "Foreshadow schedule violations")
		require.Contains(t, v.Flags, "overdue_foreshadows")
		detail := v.Flags["overdue_foreshadows"].(map[string]any)
		assert.Equal(t, 1, detail["count"])
		entries := detail["details"].([]map[string]any)
		require.Len(t, entries, 1)
		assert.Equal(t, rec.ID, entries[0]["id"])
		assert.Equal(t, 5, entries[0]["episodes_overdue"])
	})

	t.Run("resolution clears the violation", func(t *testing.T) {
		g, ledger := setup(t)
		rec, err := ledger.Schedule(ctx, "숨겨진 편지", 5)
		require.NoError(t, err)

		resolved, err := ledger.TrackPayoff(ctx, rec.Due, "진실이 드러났다 [RESOLVED:"+rec.ID+"]")
		require.NoError(t, err)
		require.True(t, resolved)

		res, err := g.Check(ctx, &Input{Episode: rec.Due + 5})
		require.NoError(t, err)
		assert.True(t, res.Passed)
	})
}
