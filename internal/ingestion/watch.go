package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for the file system to settle
// before triggering a run.
const DefaultDebounce = 2 * time.Second

// Watch watches the data dir recursively and calls onChange once the tree
// has been quiet for debounce after a recognised file was created, written,
// removed or renamed. New subdirectories are watched as they appear. Watch
// blocks until ctx is cancelled.
func Watch(ctx context.Context, root string, exts []string, debounce time.Duration, log *slog.Logger, onChange func(context.Context)) error {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingestion: create watcher: %w", err)
	}
	defer w.Close()

	if err := addTree(w, root); err != nil {
		return err
	}
	log.Info("ingestion: watching for changes", slog.String("data_dir", root))

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

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addTree(w, ev.Name); err != nil {
						log.Warn("ingestion: failed to watch new directory", slog.String("dir", ev.Name), slog.String("error", err.Error()))
					}
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) || !hasExtension(ev.Name, exts) {
				continue
			}
			log.Debug("ingestion: change detected", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			onChange(ctx)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("ingestion: watcher error", slog.String("error", err.Error()))
		}
	}
}

// addTree adds dir and every non-hidden subdirectory to the watcher.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("ingestion: watch %s: %w", p, err)
		}
		return nil
	})
}
