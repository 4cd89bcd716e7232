// Package corelock provides two locks: a cross-process advisory file lock
// over the data directory (single-writer assumption made observable), and
// an in-process registry-wide mutex held for the duration of
// RegisterModel/HandleModelSwitch's atomic sequence.
package corelock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// DataDirLock is a cross-process advisory lock guarding one data directory:
// one chunkcore process per data directory at a time.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock creates a lock for the given data directory.
// The lock file lives at <dataDir>/.chunkcore.lock.
func NewDataDirLock(dataDir string) *DataDirLock {
	lockPath := filepath.Join(dataDir, ".chunkcore.lock")
	return &DataDirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns false if another process already holds it.
func (l *DataDirLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire data directory lock: %w", err)
	}

	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call multiple times or when unlocked.
func (l *DataDirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release data directory lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the path to the lock file.
func (l *DataDirLock) Path() string {
	return l.path
}

// RegistryMutex is the single registry-wide mutex the Switch Coordinator
// holds for the full duration of RegisterModel and HandleModelSwitch, so
// concurrent switches cannot interleave their invalidation passes.
type RegistryMutex struct {
	mu sync.Mutex
}

// Lock acquires the registry-wide mutex.
func (m *RegistryMutex) Lock() {
	m.mu.Lock()
}

// Unlock releases the registry-wide mutex.
func (m *RegistryMutex) Unlock() {
	m.mu.Unlock()
}

// ChunkLocks is a striped set of per-chunk-id mutexes, so operations against
// the same chunk id are serialized while operations against distinct chunks
// proceed concurrently, without needing a lock per chunk directory.
type ChunkLocks struct {
	locks sync.Map // chunk id -> *sync.Mutex
}

// For returns the mutex for the given chunk id, creating it on first use.
func (c *ChunkLocks) For(chunkID string) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(chunkID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
