package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DataWatcher watches a project's data directory and invokes a callback
// when a watched document changes on disk. The validate --watch mode uses
// it to re-run the guard chain when drafts or guard inputs (rules.json,
// anchors.json) are edited out-of-band.
type DataWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	onChange    func(path string)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewDataWatcher creates a watcher for dir. onChange receives the path of
// each changed file, debounced so rapid editor saves fire once.
func NewDataWatcher(dir string, logger *zap.Logger, onChange func(path string)) (*DataWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &DataWatcher{
		watcher:     w,
		dir:         dir,
		logger:      logger,
		debounceMap: make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		onChange:    onChange,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; events are handled in a goroutine
// until Stop is called.
func (w *DataWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.logger.Warn("watcher: could not create dir", zap.String("dir", w.dir), zap.Error(err))
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	go w.loop()
	return nil
}

func (w *DataWatcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if w.debounced(event.Name) {
				continue
			}
			w.logger.Debug("watcher: data changed", zap.String("file", filepath.Base(event.Name)))
			if w.onChange != nil {
				w.onChange(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// debounced reports whether an event for path arrived inside the debounce
// window and records the event time.
func (w *DataWatcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if last, ok := w.debounceMap[path]; ok && now.Sub(last) < w.debounceDur {
		return true
	}
	w.debounceMap[path] = now
	return false
}

// Stop ends watching and waits for the event loop to exit.
func (w *DataWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.watcher.Close()
	<-w.doneCh
}
