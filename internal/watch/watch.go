// Package watch imports practice data from a drop directory:
// JSON dataset files placed there are merged into the database
// and renamed with a .done suffix once processed.
package watch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ImportFunc merges one dataset file into the database.
type ImportFunc func(path string) error

// Watcher watches the import directory and triggers imports with
// debouncing, so files still being written are picked up once.
type Watcher struct {
	dir      string
	importFn ImportFunc
	watcher  *fsnotify.Watcher
	debounce time.Duration
	pending  map[string]time.Time
	mu       sync.Mutex
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// New creates a watcher over dir, creating the directory if
// needed.
func New(
	dir string, debounce time.Duration, importFn ImportFunc,
) (*Watcher, error) {
	if importFn == nil {
		return nil, fmt.Errorf("import callback is nil: %w", os.ErrInvalid)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating import directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		importFn: importFn,
		watcher:  fsw,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}, nil
}

// importable reports whether path is a dataset file we handle.
func importable(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// Scan imports dataset files already present in the directory.
// Used at startup to catch files dropped while not running.
func (w *Watcher) Scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		log.Printf("import scan: %v", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !importable(e.Name()) {
			continue
		}
		w.runImport(filepath.Join(w.dir, e.Name()))
	}
}

// Start begins processing file events in a goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops the watcher and waits for it to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("import watcher error: %v", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !importable(event.Name) {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = w.now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := w.now()
	var ready []string
	for path, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.runImport(path)
	}
}

// runImport imports one file and renames it out of the way on
// success so it is not imported again.
func (w *Watcher) runImport(path string) {
	if _, err := os.Stat(path); err != nil {
		return // deleted between event and flush
	}
	if err := w.importFn(path); err != nil {
		log.Printf("importing %s: %v", filepath.Base(path), err)
		return
	}
	if err := os.Rename(path, path+".done"); err != nil {
		log.Printf("renaming imported file %s: %v",
			filepath.Base(path), err)
		return
	}
	log.Printf("imported %s", filepath.Base(path))
}
