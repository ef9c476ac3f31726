// Package lockfile provides a cross-process exclusive lock, used to keep two
// kirosync processes from racing on the same state file.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned when another process already holds the lock.
var ErrLocked = errors.New("lock already held by another process")

// Lock is a held filesystem lock. Release it when the run finishes.
type Lock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive non-blocking lock on the file at path, creating
// it if needed. Returns ErrLocked when another process holds it.
func Acquire(path string) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating lock directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600) // #nosec G304 - path derives from config
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := flockExclusive(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	// Record the holder for debugging; the flock is what matters.
	_ = f.Truncate(0)
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())

	return &Lock{path: path, f: f}, nil
}

// Release drops the lock. Safe to call once.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := flockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	_ = os.Remove(l.path)
	if err != nil {
		return err
	}
	return closeErr
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}
