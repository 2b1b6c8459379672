// Package watcher watches an artifact directory tree and reports which
// scopes changed, debounced so a burst of writes yields one notification.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/modreg/internal/log"
	"github.com/zjrosen/modreg/internal/scope"
)

// Mapper maps a changed path to the scope it belongs to.
type Mapper func(path string) (scope.ID, bool)

// Watcher monitors a directory tree and sends the set of changed scopes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	mapper    Mapper
	debounce  time.Duration
	onChange  chan []scope.ID
	done      chan struct{}
	stopOnce  sync.Once
	stopErr   error
}

// Config holds watcher configuration options.
type Config struct {
	Root        string
	Mapper      Mapper
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(root string, mapper Mapper) Config {
	return Config{
		Root:        root,
		Mapper:      mapper,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New creates a new watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Mapper == nil {
		return nil, errors.New("watcher: mapper is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		root:      filepath.Clean(cfg.Root),
		mapper:    cfg.Mapper,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan []scope.ID, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the tree. The returned channel receives the
// changed scopes, sorted, once per debounce window.
func (w *Watcher) Start() (<-chan []scope.ID, error) {
	if err := w.addTree(w.root); err != nil {
		return nil, err
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. Later calls return
// the result of the first.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
		w.stopErr = w.fsWatcher.Close()
	})
	return w.stopErr
}

// addTree watches dir and every directory below it. fsnotify is not
// recursive, so directories created later are added as they appear.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("watching directory %s: %w", path, err)
		}
		return nil
	})
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending = make(map[scope.ID]struct{})
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						log.ErrorErr(log.CatWatcher, "failed to watch new directory", err, "path", event.Name)
					}
				}
			}

			id, ok := w.relevantScope(event)
			if !ok {
				continue
			}
			pending[id] = struct{}{}

			// Reset or start debounce timer
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

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if len(pending) == 0 {
				continue
			}
			batch := make([]scope.ID, 0, len(pending))
			for id := range pending {
				batch = append(batch, id)
			}
			slices.SortFunc(batch, func(a, b scope.ID) int {
				return strings.Compare(a.String(), b.String())
			})
			select {
			case w.onChange <- batch:
				clear(pending)
			case <-w.done:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "watch error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// relevantScope maps an event to its scope. Only content changes count;
// chmod-only events and editor temp files are ignored.
func (w *Watcher) relevantScope(event fsnotify.Event) (scope.ID, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return scope.ID{}, false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return scope.ID{}, false
	}
	return w.mapper(event.Name)
}
