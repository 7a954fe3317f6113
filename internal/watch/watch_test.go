package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// recorder collects import calls behind a mutex.
type recorder struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recorder) importFn(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func startTestWatcher(t *testing.T, r *recorder) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := New(dir, 20*time.Millisecond, r.importFn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start()
	t.Cleanup(w.Stop)
	return w, dir
}

// pollUntil polls fn until it returns true or the timeout expires.
func pollUntil(
	t *testing.T, timeout time.Duration, msg string, fn func() bool,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNewRequiresCallback(t *testing.T) {
	_, err := New(t.TempDir(), time.Millisecond, nil)
	if !errors.Is(err, os.ErrInvalid) {
		t.Errorf("err = %v, want os.ErrInvalid", err)
	}
}

func TestWatcherImportsDroppedFile(t *testing.T) {
	r := &recorder{}
	_, dir := startTestWatcher(t, r)

	path := filepath.Join(dir, "export.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	pollUntil(t, 5*time.Second, "import was not triggered", func() bool {
		return r.count() > 0
	})

	// Successful imports are renamed out of the way.
	pollUntil(t, 5*time.Second, "file was not renamed", func() bool {
		_, err := os.Stat(path + ".done")
		return err == nil
	})
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("original file still present after import")
	}
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	r := &recorder{}
	_, dir := startTestWatcher(t, r)

	if err := os.WriteFile(
		filepath.Join(dir, "notes.txt"), []byte("x"), 0o644,
	); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if r.count() != 0 {
		t.Errorf("import called %d times for .txt file", r.count())
	}
}

func TestWatcherKeepsFileOnImportError(t *testing.T) {
	r := &recorder{err: errors.New("bad dataset")}
	_, dir := startTestWatcher(t, r)

	path := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	pollUntil(t, 5*time.Second, "import was not triggered", func() bool {
		return r.count() > 0
	})

	if _, err := os.Stat(path); err != nil {
		t.Errorf("failed import should leave the file in place: %v", err)
	}
}

func TestScanImportsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json", "skip.csv"} {
		if err := os.WriteFile(
			filepath.Join(dir, name), []byte("{}"), 0o644,
		); err != nil {
			t.Fatalf("writing file: %v", err)
		}
	}

	r := &recorder{}
	w, err := New(dir, 20*time.Millisecond, r.importFn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.watcher.Close()

	w.Scan()
	if r.count() != 2 {
		t.Errorf("imported %d files, want 2", r.count())
	}
}
