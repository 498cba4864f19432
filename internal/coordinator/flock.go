package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const lockFileName = "tracking.lock"

// fileLock provides cross-process mutual exclusion using flock(2).
// The coordinator holds it for its whole lifetime: two coordinators
// sharing one tracking store is unsupported and refused at open.
type fileLock struct {
	path string
	file *os.File
}

// newFileLock creates a fileLock inside dir as "tracking.lock".
func newFileLock(dir string) *fileLock {
	return &fileLock{path: filepath.Join(dir, lockFileName)}
}

// TryLock attempts to acquire the lock without blocking.
// Returns false if another process holds it.
func (fl *fileLock) TryLock() (bool, error) {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if err == syscall.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}

	fl.file = f
	return true, nil
}

// Unlock releases the lock and closes the lock file.
func (fl *fileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = fl.file.Close()
		fl.file = nil
		return fmt.Errorf("funlock: %w", err)
	}

	err := fl.file.Close()
	fl.file = nil
	return err
}
