//go:build !windows

package fsutil

import (
	"os"

	"github.com/google/renameio/v2"
)

// AtomicWriteFile writes data to a file atomically and durably.
// On Unix systems this uses renameio (temp file, fsync, rename).
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
