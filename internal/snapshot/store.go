// Package snapshot persists immutable diagnostic records to a bounded,
// append-only directory. One JSON file per record, id-named; inserting
// beyond the cap evicts the oldest record by timestamp.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
	"github.com/hugo-lorenzo-mato/vigil/internal/fsutil"
	"github.com/hugo-lorenzo-mato/vigil/internal/metrics"
)

const (
	filePrefix = "snap-"
	fileSuffix = ".json"

	// DefaultMaxRecords bounds the snapshot directory.
	DefaultMaxRecords = 20

	readCacheSize = 64
)

// ErrNoSnapshots is returned when the store holds no records.
var ErrNoSnapshots = core.ErrNotFound("NO_SNAPSHOTS", "no diagnostic snapshots stored")

// Store is a bounded file-per-record snapshot log.
type Store struct {
	dir        string
	maxRecords int
	logger     *slog.Logger

	mu           sync.Mutex
	cache        *lru.Cache[string, *core.DiagnosticSnapshot]
	sessionStart time.Time
}

// Option configures the store.
type Option func(*Store)

// WithMaxRecords overrides the record cap.
func WithMaxRecords(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRecords = n
		}
	}
}

// NewStore creates a snapshot store rooted at dir.
func NewStore(dir string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	cache, err := lru.New[string, *core.DiagnosticSnapshot](readCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot cache: %w", err)
	}

	s := &Store{
		dir:          dir,
		maxRecords:   DefaultMaxRecords,
		logger:       logger,
		cache:        cache,
		sessionStart: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save persists snap and enforces the record cap, evicting the oldest
// records by timestamp.
func (s *Store) Save(snap *core.DiagnosticSnapshot) error {
	if snap == nil {
		return core.ErrValidation("NIL_SNAPSHOT", "snapshot must not be nil")
	}
	if snap.ID == "" {
		return core.ErrValidation("MISSING_ID", "snapshot id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	path := s.pathFor(snap.ID)
	if err := fsutil.AtomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	s.cache.Add(snap.ID, snap)
	metrics.SnapshotsSaved.Inc()

	if err := s.evictLocked(); err != nil {
		s.logger.Warn("snapshot eviction failed", "error", err)
	}
	return nil
}

// LoadAll returns every stored snapshot, newest first.
func (s *Store) LoadAll() ([]*core.DiagnosticSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.loadAllLocked()
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// LoadLatest returns the newest stored snapshot.
func (s *Store) LoadLatest() (*core.DiagnosticSnapshot, error) {
	snaps, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNoSnapshots
	}
	return snaps[0], nil
}

// LoadLastSession returns up to k snapshots recorded before this store was
// created (the previous session), newest first.
func (s *Store) LoadLastSession(k int) ([]*core.DiagnosticSnapshot, error) {
	snaps, err := s.LoadAll()
	if err != nil {
		return nil, err
	}

	out := make([]*core.DiagnosticSnapshot, 0, k)
	for _, snap := range snaps {
		if !snap.Timestamp.Before(s.sessionStart) {
			continue
		}
		out = append(out, snap)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Count returns the number of stored snapshots.
func (s *Store) Count() (int, error) {
	ids, err := s.listIDs()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ClearAll removes every stored snapshot.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.listIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing snapshot %s: %w", id, err)
		}
		s.cache.Remove(id)
	}
	return nil
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, filePrefix+id+fileSuffix)
}

func (s *Store) listIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	return ids, nil
}

// loadAllLocked reads every record, consulting the LRU cache before disk,
// and returns them sorted newest first.
func (s *Store) loadAllLocked() ([]*core.DiagnosticSnapshot, error) {
	ids, err := s.listIDs()
	if err != nil {
		return nil, err
	}

	snaps := make([]*core.DiagnosticSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.loadOne(id)
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", "id", id, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Timestamp.After(snaps[j].Timestamp)
	})
	return snaps, nil
}

func (s *Store) loadOne(id string) (*core.DiagnosticSnapshot, error) {
	if snap, ok := s.cache.Get(id); ok {
		return snap, nil
	}

	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		return nil, err
	}
	var snap core.DiagnosticSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", id, err)
	}
	s.cache.Add(id, &snap)
	return &snap, nil
}

// evictLocked removes the oldest records until the cap holds.
func (s *Store) evictLocked() error {
	snaps, err := s.loadAllLocked()
	if err != nil {
		return err
	}

	for len(snaps) > s.maxRecords {
		oldest := snaps[len(snaps)-1]
		if err := os.Remove(s.pathFor(oldest.ID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("evicting snapshot %s: %w", oldest.ID, err)
		}
		s.cache.Remove(oldest.ID)
		s.logger.Debug("evicted snapshot", "id", oldest.ID, "timestamp", oldest.Timestamp)
		snaps = snaps[:len(snaps)-1]
	}
	return nil
}
