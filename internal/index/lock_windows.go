//go:build windows

package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const lockFile = "index.lock"

// Lock represents an exclusive lock on the index. Windows has no flock, so
// this is a best-effort pid file: a stale file from a crashed process does
// not block the next run.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock writes this process's pid to the lock file.
func AcquireLock(stateDir string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	path := filepath.Join(stateDir, lockFile)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing pid to lock file: %w", err)
	}

	return &Lock{path: path, file: file}, nil
}

// Release releases the lock and removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	l.file.Close()
	os.Remove(l.path)
}
