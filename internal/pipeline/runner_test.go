package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storyguard/internal/guard"
	"storyguard/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// cleanDraft passes the text guards: diverse vocabulary, no forbidden
// patterns, mild emotional register.
const cleanDraft = `태오는 낡은 도서관 계단을 올라가며 창밖의 비 오는 거리를 바라보았다. ` +
	`사서는 조용히 고개를 끄덕이고는 지하 서고의 열쇠를 건넸다. ` +
	`먼지 쌓인 책장 사이에서 그는 어머니의 이름이 적힌 편지 한 통을 발견했다.`

// balancedScene matches the pacing baseline: four dialog lines, three
// action sentences, three monolog sentences.
const balancedScene = `"어서 오세요" "열쇠는 여기 있어요" "조심하세요" "고마워요" ` +
	`태오는 계단을 달렸다. 그는 문을 잡았다. 서고 안으로 뛰었다. ` +
	`무언가 이상하다고 생각했다. 어머니를 기억했다. 진실이 궁금했다.`

func cleanEpisode(project string) Episode {
	return Episode{
		Project: project,
		Number:  1,
		Draft:   cleanDraft,
		Scenes:  []string{balancedScene, balancedScene},
	}
}

func newRunner(t *testing.T, store storage.Store) *Runner {
	t.Helper()
	reg := guard.NewRegistry()
	guard.RegisterBuiltins(reg)
	return &Runner{
		Registry: reg,
		Store:    store,
		Settings: guard.Settings{},
		Retry:    guard.RetryOptions{Fast: true},
	}
}

func TestRunnerRun(t *testing.T) {
	ctx := context.Background()

	t.Run("clean draft passes the whole chain", func(t *testing.T) {
		store := storage.NewFileStore(t.TempDir())
		r := newRunner(t, store)

		rep, err := r.Run(ctx, cleanEpisode("default"))
		require.NoError(t, err)
		assert.True(t, rep.Passed)
		require.Len(t, rep.Outcomes, 10)
		assert.Empty(t, rep.Violations())

		// Outcomes arrive in chain order.
		for i := 1; i < len(rep.Outcomes); i++ {
			assert.Greater(t, rep.Outcomes[i].Order, rep.Outcomes[i-1].Order)
		}
	})

	t.Run("violations are collected, chain continues", func(t *testing.T) {
		store := storage.NewFileStore(t.TempDir())
		require.NoError(t, store.Save(ctx, "default", "rules.json", []guard.Rule{
			{ID: "r001", Pattern: "도서관", Message: "도서관 금지"},
		}))
		r := newRunner(t, store)

		rep, err := r.Run(ctx, cleanEpisode("default"))
		require.NoError(t, err)
		assert.False(t, rep.Passed)

		require.Len(t, rep.Violations(), 1)
		v := rep.Violations()[0]
		assert.Equal(t, "rule_guard", v.Guard)
		assert.Equal(t, 3, v.Attempts)
		assert.Len(t, v.History, 3)
		assert.Contains(t, v.Violation, "failed after 3 attempts")

		// Guards after the violation still ran.
		last := rep.Outcomes[len(rep.Outcomes)-1]
		assert.Equal(t, "critique_guard", last.Guard)
	})

	t.Run("strict mode fails the run", func(t *testing.T) {
		store := storage.NewFileStore(t.TempDir())
		require.NoError(t, store.Save(ctx, "default", "rules.json", []guard.Rule{
			{ID: "r001", Pattern: "도서관", Message: "도서관 금지"},
		}))
		r := newRunner(t, store)
		r.Strict = true

		rep, err := r.Run(ctx, cleanEpisode("default"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrChainFailed)
		require.NotNil(t, rep)
		assert.False(t, rep.Passed)
	})

	t.Run("character guard skipped without characters.json", func(t *testing.T) {
		store := storage.NewFileStore(t.TempDir())
		r := newRunner(t, store)

		rep, err := r.Run(ctx, cleanEpisode("default"))
		require.NoError(t, err)
		for _, o := range rep.Outcomes {
			if o.Guard == "immutable_guard" {
				assert.Equal(t, "no character data", o.Skipped)
			}
		}
	})

	t.Run("characters.json is loaded when present", func(t *testing.T) {
		store := storage.NewFileStore(t.TempDir())
		require.NoError(t, store.Save(ctx, "default", "characters.json", map[string]map[string]any{
			"hero": {"name": "태오", "immutable": []any{"name"}},
		}))
		r := newRunner(t, store)

		rep, err := r.Run(ctx, cleanEpisode("default"))
		require.NoError(t, err)
		for _, o := range rep.Outcomes {
			if o.Guard == "immutable_guard" {
				assert.Empty(t, o.Skipped)
				assert.True(t, o.Passed)
			}
		}
	})
}

func TestBuildInput(t *testing.T) {
	t.Run("fallbacks applied", func(t *testing.T) {
		in := buildInput(Episode{Project: "default", Number: 3, Draft: "abcdefghij"})
		assert.Equal(t, neutralPrevText, in.PrevText)
		require.Len(t, in.Scenes, 3)
		assert.Equal(t, "abcdefghij", strings.Join(in.Scenes, ""))
		assert.NotNil(t, in.Context)
	})

	t.Run("explicit values kept", func(t *testing.T) {
		in := buildInput(Episode{
			Number:   3,
			Draft:    "draft",
			PrevText: "previous",
			Scenes:   []string{"one scene"},
			Context:  map[string]any{"date": "2024-01-01"},
		})
		assert.Equal(t, "previous", in.PrevText)
		assert.Equal(t, []string{"one scene"}, in.Scenes)
		assert.Equal(t, "2024-01-01", in.Context["date"])
	})
}

func TestRunBatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore(t.TempDir())
	r := newRunner(t, store)

	episodes := []Episode{
		cleanEpisode("alpha"),
		cleanEpisode("beta"),
		cleanEpisode("gamma"),
	}
	reports, err := r.RunBatch(ctx, episodes)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for i, rep := range reports {
		require.NotNil(t, rep, "report %d", i)
		assert.Equal(t, episodes[i].Project, rep.Project)
		assert.True(t, rep.Passed)
	}
}

func TestWriteReport(t *testing.T) {
	base := t.TempDir()
	rep := &Report{Project: "demo", Episode: 7, Passed: true}

	path, err := WriteReport(base, rep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "demo", "outputs", "guard_report_ep007.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"project": "demo"`)
}

func TestRunInfrastructureError(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, failingStore{})

	_, err := r.Run(ctx, cleanEpisode("default"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChainFailed)
}

type failingStore struct{}

var errDiskGone = errors.New("disk gone")

func (failingStore) Load(context.Context, string, string, any) error { return errDiskGone }
func (failingStore) Save(context.Context, string, string, any) error { return errDiskGone }
