//go:build !windows

package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	locuserrors "locus/internal/errors"
)

const lockFile = "index.lock"

// Lock represents an exclusive lock on the index.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock attempts to acquire an exclusive lock on the index. When
// another process holds it, the error carries the LOCK_HELD code and, where
// readable, the holder's pid.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	path := filepath.Join(stateDir, lockFile)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	// Non-blocking exclusive lock: indexing should fail fast, not queue.
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()

		pid := 0
		if content, readErr := os.ReadFile(path); readErr == nil {
			pid, _ = strconv.Atoi(strings.TrimSpace(string(content)))
		}
		return nil, locuserrors.NewLockHeld(path, pid)
	}

	if err := file.Truncate(0); err != nil {
		releaseFd(file)
		return nil, fmt.Errorf("truncating lock file: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		releaseFd(file)
		return nil, fmt.Errorf("seeking lock file: %w", err)
	}
	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		releaseFd(file)
		return nil, fmt.Errorf("writing pid to lock file: %w", err)
	}

	return &Lock{path: path, file: file}, nil
}

// Release releases the lock and removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	releaseFd(l.file)
	_ = os.Remove(l.path)
}

func releaseFd(file *os.File) {
	_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
	_ = file.Close()
}
