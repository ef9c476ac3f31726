// Package watcher re-triggers sync runs when spec files change on disk.
//
// It is the external collaborator the engine's continuous mode expects: the
// engine only holds the on/off flag, the watcher owns fsnotify and the
// debounce window.
package watcher

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirosync/kirosync/internal/debug"
)

// Watcher watches spec directories recursively and invokes a callback after
// a debounce window whenever a markdown file changes.
type Watcher struct {
	fsw  *fsnotify.Watcher
	deb  *Debouncer
	dirs []string

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher over the given directories. onChange runs after
// debounce has passed since the last relevant event.
func New(dirs []string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &Watcher{
		fsw:  fsw,
		deb:  NewDebouncer(debounce, onChange),
		dirs: dirs,
		done: make(chan struct{}),
	}, nil
}

// Start registers the directory tree and begins dispatching events.
func (w *Watcher) Start() error {
	for _, dir := range w.dirs {
		if err := w.addRecursive(dir); err != nil {
			return err
		}
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop shuts the watcher down and drains any in-flight callback.
func (w *Watcher) Stop() {
	close(w.done)
	_ = w.fsw.Close()
	w.wg.Wait()
	w.deb.CancelAndWait()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			debug.Logf("watcher error: %v\n", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New subdirectories need to be registered before their files produce
	// events.
	if event.Op.Has(fsnotify.Create) {
		if err := w.addRecursive(event.Name); err != nil {
			debug.Logf("watcher: cannot register %s: %v\n", event.Name, err)
		}
	}

	if !strings.HasSuffix(strings.ToLower(event.Name), ".md") {
		return
	}
	if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		debug.Logf("watcher: %s %s\n", event.Op, event.Name)
		w.deb.Trigger()
	}
}
