package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// writeLock is the advisory lock enforcing "exactly one indexer may write
// to a repository store at a time." Readers (the Query Engine) bypass it
// entirely and must tolerate shards growing underneath them.
type writeLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// newWriteLock builds the lock for a repository directory. The lock file's
// mere presence is the documented signal of an active writer; the
// underlying flock primitive makes that signal crash-safe (the OS releases
// the lock automatically if the holding process dies).
func newWriteLock(repoDir string) *writeLock {
	path := filepath.Join(repoDir, "lock")
	return &writeLock{path: path, flock: flock.New(path)}
}

// TryLock attempts to acquire the lock without blocking.
func (l *writeLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create repository directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire write lock: %w", err)
	}
	if ok {
		l.locked = true
	}
	return ok, nil
}

// Unlock releases the lock. Safe to call multiple times.
func (l *writeLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release write lock: %w", err)
	}
	l.locked = false
	return nil
}
