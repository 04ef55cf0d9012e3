// Package filelock provides advisory file locking used to guarantee that at
// most one kobold worker daemon runs against a given data directory at a
// time.
package filelock

import (
	"os"

	"github.com/pkg/errors"
)

// Locker provides file locking facilities.
type Locker struct {
	// file is the underlying lock file.
	file *os.File
}

// NewLocker creates a lock backed by the file at path, creating it if
// necessary. The lock is returned in an unlocked state.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE | os.O_APPEND
	file, err := os.OpenFile(path, mode, permissions)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	}
	return &Locker{file: file}, nil
}

// Close closes the underlying lock file. Closing the file also releases any
// lock this process holds on it.
func (l *Locker) Close() error {
	return l.file.Close()
}
