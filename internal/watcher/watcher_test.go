package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWatcherTriggersOnMarkdownWrite(t *testing.T) {
	dir := t.TempDir()
	var fires atomic.Int32

	w, err := New([]string{dir}, 20*time.Millisecond, func() { fires.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "tasks.md"), []byte("- [ ] 1 T\n"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return fires.Load() > 0 }, "markdown write never triggered the callback")
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	var fires atomic.Int32

	w, err := New([]string{dir}, 20*time.Millisecond, func() { fires.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Errorf("fires = %d, want 0 for non-markdown file", got)
	}
}

func TestWatcherPicksUpNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	var fires atomic.Int32

	w, err := New([]string{dir}, 20*time.Millisecond, func() { fires.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	sub := filepath.Join(dir, "new-spec")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a beat to register the new directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(sub, "tasks.md"), []byte("- [ ] 1 T\n"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return fires.Load() > 0 }, "write in new subdirectory never triggered the callback")
}
