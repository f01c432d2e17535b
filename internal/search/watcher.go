package search

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/boundaryd/internal/listing"
)

// debounceDelay batches rapid rewrites of the same file into one
// re-index pass.
const debounceDelay = 500 * time.Millisecond

// Watcher keeps the semantic index current as files under a root change.
// One watcher serves one root.
type Watcher struct {
	index   *Index
	root    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	stop    chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher for canonicalRoot. Start must be called
// before events flow.
func NewWatcher(index *Index, canonicalRoot string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		index:   index,
		root:    canonicalRoot,
		watcher: fsw,
		logger:  logger.Named("search.watcher"),
		stop:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Start registers the root's directory tree and begins processing events
// in a background goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if listing.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	go w.processEvents(ctx)
	return nil
}

// Stop halts event processing and releases the OS watches. Safe to call
// more than once.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.timers {
		t.Stop()
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !listing.SkipDir(filepath.Base(event.Name)) {
			_ = w.watcher.Add(event.Name)
		}
		return
	}

	w.scheduleReindex(ctx, event.Name)
}

// scheduleReindex re-indexes path after a quiet period, resetting the
// clock if the file keeps changing.
func (w *Watcher) scheduleReindex(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(debounceDelay)
		return
	}
	w.timers[path] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := w.index.IndexFile(ctx, w.root, path); err != nil {
			w.logger.Warn("re-index failed",
				zap.String("path", path),
				zap.Error(err))
		}
	})
}
