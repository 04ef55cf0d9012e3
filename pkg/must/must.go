// Package must provides helpers for performing best-effort cleanup operations
// whose errors are worth logging but not worth propagating.
package must

import (
	"io"
	"os"

	"github.com/kobold-io/kobold/pkg/logging"
)

// Close closes c, logging any error instead of returning it. It's meant for
// use in defer statements where a close failure shouldn't mask the primary
// error path.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("Unable to close: %s", err.Error())
	}
}

// Remove removes the file at path, logging any error instead of returning it.
func Remove(path string, logger *logging.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Unable to remove '%s': %s", path, err.Error())
	}
}

// Unlock unlocks locker, logging any error instead of returning it.
func Unlock(locker interface{ Unlock() error }, logger *logging.Logger) {
	if err := locker.Unlock(); err != nil {
		logger.Warnf("Unable to unlock locker: %s", err.Error())
	}
}
