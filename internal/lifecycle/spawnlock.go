// Package lifecycle manages the server process's on-disk footprint for
// the duration it runs: the spawn lock that keeps two server instances
// from racing over one cache directory, and the server.json status file
// other tools poll to find a running server (spec §5, §6).
package lifecycle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// SpawnLock is a cross-process advisory lock, one per cache directory,
// preventing two HTTP server instances from running against the same
// project (spec §5: "a file-based advisory lock prevents two HTTP server
// instances for the same cache directory"). Adapted from the teacher's
// embedding-model download lock (internal/embed/lock.go), same
// gofrs/flock wrapper shape, repointed at <cache_dir>/spawn.lock instead
// of <models_dir>/.download.lock.
type SpawnLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewSpawnLock returns a SpawnLock backed by <cacheDir>/spawn.lock.
func NewSpawnLock(cacheDir string) *SpawnLock {
	path := filepath.Join(cacheDir, "spawn.lock")
	return &SpawnLock{path: path, flock: flock.New(path)}
}

// TryLock attempts to acquire the lock without blocking. false means
// another server process already holds it.
func (l *SpawnLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("lifecycle: spawn_lock mkdir: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("lifecycle: spawn_lock try_lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unlocked SpawnLock.
func (l *SpawnLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("lifecycle: spawn_lock unlock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file's path.
func (l *SpawnLock) Path() string { return l.path }
