// Package watch observes the specs directory and turns file writes
// into document change events, so validations stay current without
// anyone asking for them.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/document"
	"github.com/fyrsmithlabs/specd/internal/sanitize"
	"github.com/fyrsmithlabs/specd/internal/specstore"
)

// ErrWatcherFailed indicates the filesystem watcher could not be
// initialized.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// ChangeEvent reports a write to one feature's phase document.
type ChangeEvent struct {
	Feature   string
	DocType   document.Type
	Path      string
	Timestamp time.Time
}

// Watcher emits a ChangeEvent for every write to a phase document
// under the specs root. Feature directories created while watching
// are picked up automatically.
type Watcher struct {
	specs   *specstore.Store
	watcher *fsnotify.Watcher
	events  chan ChangeEvent
	stop    chan struct{}
	logger  *zap.Logger
}

// NewWatcher creates a watcher over the store's specs root.
func NewWatcher(specs *specstore.Store, logger *zap.Logger) (*Watcher, error) {
	if specs == nil {
		return nil, errors.New("spec store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		specs:   specs,
		watcher: fw,
		events:  make(chan ChangeEvent, 16),
		stop:    make(chan struct{}),
		logger:  logger,
	}, nil
}

// Start registers the specs root and its existing feature
// directories, then processes events in a background goroutine.
// Call Stop to clean up.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.specs.Root()
	if err := w.watcher.Add(root); err != nil {
		return fmt.Errorf("watching specs directory %s: %w", root, err)
	}

	features, err := w.specs.ListFeatures(ctx)
	if err != nil {
		return fmt.Errorf("listing features: %w", err)
	}
	for _, feature := range features {
		dir := filepath.Join(root, feature)
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("cannot watch feature directory",
				zap.String("dir", dir), zap.Error(err))
		}
	}

	go w.processEvents(ctx)

	w.logger.Info("watching specs directory",
		zap.String("root", root),
		zap.Int("features", len(features)))
	return nil
}

// Events returns the channel change events arrive on.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

// Stop stops the watcher and releases its resources. Safe to call
// more than once.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
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
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.handleChange(event)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleChange(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 && w.maybeWatchFeatureDir(event.Name) {
		return
	}

	feature, docType, ok := w.specs.Resolve(event.Name)
	if !ok {
		return
	}

	ev := ChangeEvent{
		Feature:   feature,
		DocType:   docType,
		Path:      event.Name,
		Timestamp: time.Now().UTC(),
	}

	select {
	case w.events <- ev:
	default:
		w.logger.Warn("change event dropped, channel full",
			zap.String("feature", feature),
			zap.String("document", string(docType)))
	}
}

// maybeWatchFeatureDir adds a watch for a newly created feature
// directory directly under the root. It reports whether the path was
// such a directory.
func (w *Watcher) maybeWatchFeatureDir(path string) bool {
	if filepath.Dir(path) != w.specs.Root() {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if err := sanitize.ValidateFeatureName(filepath.Base(path)); err != nil {
		return false
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("cannot watch new feature directory",
			zap.String("dir", path), zap.Error(err))
		return true
	}
	w.logger.Debug("watching new feature directory", zap.String("dir", path))
	return true
}
