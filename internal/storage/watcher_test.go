package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDataWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()

	var mu sync.Mutex
	var changed []string
	watcher, err := NewDataWatcher(dir, nil, func(path string) {
		mu.Lock()
		changed = append(changed, filepath.Base(path))
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.json"), []byte("[]"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Contains(t, changed, "rules.json")
	mu.Unlock()

	watcher.Stop()

	t.Run("stop is idempotent", func(t *testing.T) {
		watcher.Stop()
	})
}

func TestDataWatcherDebounce(t *testing.T) {
	w := &DataWatcher{
		debounceMap: map[string]time.Time{},
		debounceDur: 100 * time.Millisecond,
	}
	assert.False(t, w.debounced("a.json"))
	assert.True(t, w.debounced("a.json"))
	assert.False(t, w.debounced("b.json"))
}
