package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SourceWatcher monitors the source tree and emits debounced rebuild triggers.
type SourceWatcher struct {
	sourceDir string
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	triggers  chan struct{}
}

// NewSourceWatcher creates a watcher over the source directory and its
// subdirectories.
func NewSourceWatcher(sourceDir string, debounce time.Duration) (*SourceWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absDir, err := filepath.Abs(sourceDir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}

	sw := &SourceWatcher{
		sourceDir: absDir,
		watcher:   watcher,
		debounce:  debounce,
		triggers:  make(chan struct{}, 1),
	}
	if err := sw.addRecursive(absDir); err != nil {
		watcher.Close()
		return nil, err
	}
	return sw, nil
}

func (sw *SourceWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		if err := sw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Triggers returns the channel of debounced rebuild requests.
func (sw *SourceWatcher) Triggers() <-chan struct{} { return sw.triggers }

// Start begins watching until the context is canceled.
func (sw *SourceWatcher) Start(ctx context.Context) {
	slog.Info("Starting source watcher", "dir", sw.sourceDir, "debounce", sw.debounce)
	go sw.watchLoop(ctx)
}

// Stop closes the underlying watcher.
func (sw *SourceWatcher) Stop() error { return sw.watcher.Close() }

func (sw *SourceWatcher) watchLoop(ctx context.Context) {
	var timer *time.Timer
	fire := func() {
		select {
		case sw.triggers <- struct{}{}:
		default: // a rebuild is already pending
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !sw.relevant(event) {
				continue
			}
			slog.Debug("Source change detected", "file", event.Name, "op", event.Op.String())

			// New directories join the watch set so nested edits are seen.
			if event.Op.Has(fsnotify.Create) {
				if err := sw.addRecursive(event.Name); err != nil {
					slog.Debug("Could not extend watch set", "path", event.Name, "error", err)
				}
			}

			if timer == nil {
				timer = time.AfterFunc(sw.debounce, fire)
			} else {
				timer.Reset(sw.debounce)
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", "error", err)
		}
	}
}

// relevant filters editor noise: only markdown and directory events count.
func (sw *SourceWatcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if ext := filepath.Ext(base); ext != "" && !strings.EqualFold(ext, ".md") {
		return false
	}
	return true
}
