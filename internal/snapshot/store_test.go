package snapshot

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil, opts...)
	require.NoError(t, err)
	return s
}

func testSnap(id string, ts time.Time) *core.DiagnosticSnapshot {
	return &core.DiagnosticSnapshot{
		ID:        id,
		Timestamp: ts,
		Reason:    "test",
		Level:     "snapshot",
		Memory:    core.MemoryStats{UsedMB: 100, TotalMB: 1000, Percent: 10},
	}
}

func TestStore_SaveAndLoadAll_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(testSnap(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	snaps, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "s2", snaps[0].ID)
	assert.Equal(t, "s0", snaps[2].ID)
}

func TestStore_CapEvictsOldestByTimestamp(t *testing.T) {
	s := newTestStore(t, WithMaxRecords(3))
	base := time.Now().Add(-time.Hour)

	// Write out of chronological order so eviction must sort by timestamp,
	// not by insertion.
	order := []int{2, 0, 3, 1}
	for _, i := range order {
		require.NoError(t, s.Save(testSnap(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	snaps, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for _, snap := range snaps {
		assert.NotEqual(t, "s0", snap.ID, "oldest record must be evicted")
	}
}

func TestStore_LoadLatest(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadLatest()
	assert.ErrorIs(t, err, ErrNoSnapshots)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, s.Save(testSnap("old", base)))
	require.NoError(t, s.Save(testSnap("new", base.Add(time.Minute))))

	latest, err := s.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)
}

func TestStore_LoadLastSession(t *testing.T) {
	dir := t.TempDir()

	// First session writes two records.
	s1, err := NewStore(dir, nil)
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, s1.Save(testSnap("prev-1", past)))
	require.NoError(t, s1.Save(testSnap("prev-2", past.Add(time.Minute))))

	// Simulated restart: a fresh store over the same directory.
	s2, err := NewStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s2.Save(testSnap("current", time.Now().Add(time.Minute))))

	prior, err := s2.LoadLastSession(5)
	require.NoError(t, err)
	require.Len(t, prior, 2)
	assert.Equal(t, "prev-2", prior[0].ID)

	limited, err := s2.LoadLastSession(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "prev-2", limited[0].ID)
}

func TestStore_ClearAll(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(testSnap("a", time.Now())))
	require.NoError(t, s.Save(testSnap("b", time.Now())))

	require.NoError(t, s.ClearAll())

	count, err := s.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_SaveValidation(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Save(nil))
	assert.Error(t, s.Save(&core.DiagnosticSnapshot{Timestamp: time.Now()}))
}

func TestStore_SurvivesForeignFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Dir()+"/README.txt", []byte("not a snapshot"), 0o600))
	require.NoError(t, os.WriteFile(s.Dir()+"/snap-broken.json", []byte("{"), 0o600))

	require.NoError(t, s.Save(testSnap("ok", time.Now())))

	snaps, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "ok", snaps[0].ID)
}

func TestCapturer_Capture(t *testing.T) {
	c := NewCapturer("vigil-test", "1.2.3", "session-1",
		WithMemorySource(func() core.MemoryStats {
			return core.MemoryStats{UsedMB: 512, TotalMB: 1024, Percent: 50}
		}),
		WithActiveOperations(func() []string { return []string{"render-1"} }),
		WithRecentLogs(func() []string { return []string{"line one"} }),
		WithScreen(func() string { return "reader" }),
	)

	snap := c.Capture("unresponsive", "snapshot")

	assert.NotEmpty(t, snap.ID)
	assert.WithinDuration(t, time.Now(), snap.Timestamp, 5*time.Second)
	assert.Equal(t, "unresponsive", snap.Reason)
	assert.Equal(t, "snapshot", snap.Level)
	assert.Equal(t, 50.0, snap.Memory.Percent)
	assert.Equal(t, []string{"render-1"}, snap.ActiveOperations)
	assert.Equal(t, []string{"line one"}, snap.RecentLogs)
	assert.Equal(t, "reader", snap.CurrentScreen)
	assert.Equal(t, "vigil-test", snap.App.Name)
	assert.NotEmpty(t, snap.Device.OS)

	// Two captures never share an id.
	assert.NotEqual(t, snap.ID, c.Capture("unresponsive", "snapshot").ID)
}
