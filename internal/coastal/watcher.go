package coastal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/logging"
)

// Reloader is a dataset that can re-read its file
type Reloader interface {
	Path() string
	Reload() error
}

// Watcher reloads datasets when their CSV files change on disk
type Watcher struct {
	targets     map[string]Reloader // cleaned absolute path -> dataset
	debounceDur time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	pending map[string]time.Time
	reloads int
	ready   chan struct{}
}

// NewWatcher creates a watcher for the given datasets
func NewWatcher(logger *zap.Logger, datasets ...Reloader) *Watcher {
	w := &Watcher{
		targets:     make(map[string]Reloader),
		debounceDur: 500 * time.Millisecond, // editors write in several steps
		logger:      logging.OrNop(logger).Named("csv-watcher"),
		pending:     make(map[string]time.Time),
		ready:       make(chan struct{}),
	}
	for _, d := range datasets {
		if d == nil || d.Path() == "" {
			continue
		}
		abs, err := filepath.Abs(d.Path())
		if err != nil {
			abs = d.Path()
		}
		w.targets[filepath.Clean(abs)] = d
	}
	return w
}

// Reloads returns how many reloads have run
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Ready is closed once Run has registered its directories
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches the parent directories of the datasets until ctx is done.
// Directories are watched instead of files so atomic replaces are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	dirs := map[string]bool{}
	for path := range w.targets {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			w.logger.Warn("watch failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		dirs[dir] = true
		w.logger.Debug("watching directory", zap.String("dir", dir))
	}

	close(w.ready)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(event.Name)
	if _, ok := w.targets[path]; !ok {
		return
	}
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// flush reloads every dataset that has been quiet for the debounce duration
func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	var due []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounceDur {
			due = append(due, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range due {
		if err := w.targets[path].Reload(); err != nil {
			w.logger.Error("reload failed", zap.String("path", path), zap.Error(err))
			continue
		}
		w.mu.Lock()
		w.reloads++
		w.mu.Unlock()
		w.logger.Info("dataset reloaded", zap.String("path", path))
	}
}
