package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aatumaykin/ruletoggle/internal/logger"
)

// DefaultDebounce collapses bursts of file events into one callback.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls OnChange after the document file was changed by someone
// other than its FileStore.
type Watcher struct {
	store    *FileStore
	debounce time.Duration
	onChange func(ctx context.Context)
	logger   *logger.Logger

	mu       sync.Mutex
	lastSeen string
}

// NewWatcher creates a watcher for store.
func NewWatcher(store *FileStore, debounce time.Duration, onChange func(ctx context.Context), log *logger.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Watcher{
		store:    store,
		debounce: debounce,
		onChange: onChange,
		logger:   log.Component("watcher"),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	// Editors replace files by rename, so the directory is watched.
	dir := filepath.Dir(w.store.Path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if content, err := w.store.read(); err == nil {
		w.setLastSeen(Revision(content))
	}

	w.logger.Info("watching document", logger.Field{Key: "path", Value: w.store.Path()})

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.store.Path() {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", logger.Field{Key: "error", Value: err.Error()})

		case <-fire:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	content, err := w.store.read()
	if err != nil {
		w.logger.Error("failed to read document", err)
		return
	}
	revision := Revision(content)

	if !w.setLastSeen(revision) {
		return
	}
	if w.store.IsOwnRevision(revision) {
		w.logger.Debug("skipping own write", logger.Field{Key: "revision", Value: revision})
		return
	}

	w.logger.Info("document edited externally", logger.Field{Key: "revision", Value: revision})
	if w.onChange != nil {
		w.onChange(ctx)
	}
}

// setLastSeen records revision and reports whether it is new.
func (w *Watcher) setLastSeen(revision string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastSeen == revision {
		return false
	}
	w.lastSeen = revision
	return true
}
