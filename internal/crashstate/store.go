// Package crashstate durably marks dangerous code regions and reconciles
// fatal state on the next startup. Flags are written with a synchronous
// flush so they remain readable after a hard kill.
package crashstate

import (
	"path/filepath"
	"strings"
)

// Store is a durable small-state key-value store. Set and Delete must flush
// synchronously: once they return, the mutation survives abrupt process
// termination.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) ([]byte, bool, error)

	// Set durably writes key to value.
	Set(key string, value []byte) error

	// Delete durably removes key. No-op if absent.
	Delete(key string) error

	// Keys returns all keys with the given prefix.
	Keys(prefix string) ([]string, error)

	// Close releases backing resources.
	Close() error
}

// NewStore creates a Store at path. A ".db" extension selects the SQLite
// backend; anything else gets the JSON file backend.
func NewStore(path string) (Store, error) {
	if strings.EqualFold(filepath.Ext(path), ".db") {
		return NewSQLiteStore(path)
	}
	return NewFileStore(path)
}
