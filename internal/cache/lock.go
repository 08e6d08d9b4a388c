package cache

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run holds the cache file.
var ErrLocked = errors.New("cache file is locked by another run")

// Lock is an exclusive advisory lock on a cache file, held for the duration
// of one pair run.
type Lock struct {
	flock *flock.Flock
}

// LockPath returns the lock file used for the cache at path.
func LockPath(path string) string {
	return path + ".lock"
}

// Acquire takes the lock for the cache at path without blocking.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(LockPath(path))

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock cache file %q: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &Lock{flock: fl}, nil
}

// Release unlocks the cache. The lock file is left in place so that every
// run locks the same file.
func (l *Lock) Release() error {
	if l == nil || !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock cache file: %w", err)
	}
	return nil
}
