package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "default", cfg.Project)
		assert.Equal(t, "file", cfg.Storage.Backend)
		assert.Equal(t, 0.25, cfg.Guards.PacingTolerance)
		assert.Equal(t, 2, cfg.Retry.MaxRetry)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storyguard.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
project: nightlibrary
storage:
  backend: sqlite
  db_path: nl.db
guards:
  relation_tolerance: 5
  critique_min_score: 8.5
retry:
  max_retry: 4
  backoff: 250ms
  fast: true
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "nightlibrary", cfg.Project)
		assert.Equal(t, "sqlite", cfg.Storage.Backend)
		assert.Equal(t, "nl.db", cfg.Storage.DBPath)
		assert.Equal(t, 5, cfg.Guards.RelationTolerance)
		assert.Equal(t, 8.5, cfg.Guards.CritiqueMinScore)
		assert.True(t, cfg.Retry.Fast)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("project: [unclosed"), 0o644))
		_, err := Load(path)
		require.Error(t, err)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Run("api key and model", func(t *testing.T) {
		t.Setenv("GOOGLE_API_KEY", "test-key")
		t.Setenv("STORYGUARD_MODEL", "gemini-2.5-flash")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "test-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	})

	t.Run("db env switches backend to sqlite", func(t *testing.T) {
		t.Setenv("STORYGUARD_DB", "override.db")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "sqlite", cfg.Storage.Backend)
		assert.Equal(t, "override.db", cfg.Storage.DBPath)
	})

	t.Run("fast mode and critique score", func(t *testing.T) {
		t.Setenv("STORYGUARD_FAST", "1")
		t.Setenv("MIN_CRITIQUE_SCORE", "6.5")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.True(t, cfg.Retry.Fast)
		assert.Equal(t, 6.5, cfg.Guards.CritiqueMinScore)
	})

	t.Run("env beats yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "storyguard.yaml")
		require.NoError(t, os.WriteFile(path, []byte("project: fromfile\n"), 0o644))
		t.Setenv("STORYGUARD_PROJECT", "fromenv")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "fromenv", cfg.Project)
	})
}

func TestConversions(t *testing.T) {
	t.Run("guard settings normalize", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Guards.PacingWindow = 0
		s := cfg.GuardSettings()
		assert.Equal(t, 10, s.PacingWindow)
		assert.Equal(t, 3, s.RelationTolerance)
	})

	t.Run("retry options parse backoff", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Retry.Backoff = "250ms"
		opts := cfg.RetryOptions()
		assert.Equal(t, 250*time.Millisecond, opts.Backoff)
	})

	t.Run("bad backoff keeps zero for downstream default", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Retry.Backoff = "soon"
		opts := cfg.RetryOptions()
		assert.Zero(t, opts.Backoff)
	})
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Project = "saved"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Project)
}
