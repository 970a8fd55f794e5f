// Package watcher reports batched changes under a source tree.
package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/tlogger"
)

// DefaultDebounce is the quiet period closing a batch of changes.
const DefaultDebounce = 500 * time.Millisecond

const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher watches every directory below a root.
type Watcher struct {
	w        *fsnotify.Watcher
	debounce time.Duration
}

// New watches folder and its subdirectories. A zero debounce means
// DefaultDebounce.
func New(folder string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	wch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create watcher")
	}
	w := &Watcher{w: wch, debounce: debounce}
	if err := w.addTree(folder); err != nil {
		wch.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(folder string) error {
	return filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.w.Add(path)
		}
		return nil
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.w.Close()
}

// Changes emits the changed paths of each batch, a batch ending after the
// debounce period without events. The channel closes with ctx or the
// watcher.
func (w *Watcher) Changes(ctx context.Context) <-chan []string {
	out := make(chan []string)

	go func() {
		defer close(out)

		var (
			pending []string
			seen    = map[string]bool{}
			timer   *time.Timer
			fire    <-chan time.Time
		)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.w.Events:
				if !ok {
					return
				}
				tlogger.Debug("msg", "event", "op", event.Op.String(), "path", event.Name)
				if event.Op&changeOps == 0 {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					// new directories are not watched recursively by fsnotify
					if err := w.addTree(event.Name); err != nil {
						tlogger.Debug("msg", "Could not watch path", "path", event.Name, "err", err)
					}
				}
				tlogger.Info("msg", "Detected change", "path", event.Name)
				if !seen[event.Name] {
					seen[event.Name] = true
					pending = append(pending, event.Name)
				}
				if timer == nil {
					timer = time.NewTimer(w.debounce)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(w.debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				batch := pending
				pending, seen = nil, map[string]bool{}
				select {
				case out <- batch:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.w.Errors:
				if !ok {
					return
				}
				tlogger.Warn("msg", "Watcher error", "err", err)
			}
		}
	}()

	return out
}
