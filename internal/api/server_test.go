package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
	"github.com/hugo-lorenzo-mato/vigil/internal/events"
	"github.com/hugo-lorenzo-mato/vigil/internal/snapshot"
	"github.com/hugo-lorenzo-mato/vigil/internal/taskctl"
	"github.com/hugo-lorenzo-mato/vigil/internal/watchdog"
)

func testSnapshot(id string, ts time.Time) *core.DiagnosticSnapshot {
	return &core.DiagnosticSnapshot{
		ID:        id,
		Timestamp: ts,
		Reason:    "test",
		Level:     "snapshot",
	}
}

func newTestServer(t *testing.T) (*Server, *snapshot.Store) {
	t.Helper()
	store, err := snapshot.NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	tasks := taskctl.New(nil)
	bus := events.New(10)
	t.Cleanup(bus.Close)
	wd := watchdog.New(watchdog.ProberFunc(func(ack func()) { ack() }), tasks, bus, nil)

	return NewServer(store, wd, nil, tasks, bus), store
}

func doRequest(t *testing.T, s *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_Status(t *testing.T) {
	s, store := newTestServer(t)
	require.NoError(t, store.Save(testSnapshot("s1", time.Now())))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "none", body.Watchdog.Level)
	assert.Equal(t, 1, body.Snapshots)
	assert.Equal(t, 0, body.Tasks.Active)
}

func TestServer_SnapshotEndpoints(t *testing.T) {
	s, store := newTestServer(t)
	base := time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(testSnapshot("older", base)))
	require.NoError(t, store.Save(testSnapshot("newer", base.Add(30*time.Second))))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count     int                       `json:"count"`
		Snapshots []*core.DiagnosticSnapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "newer", list.Snapshots[0].ID)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/snapshots/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest core.DiagnosticSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, "newer", latest.ID)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/snapshots/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_LastSessionRejectsBadK(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/snapshots/last-session?k=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/snapshots/last-session?k=-2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/snapshots/last-session", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_TriggerRecovery(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/recovery/trigger", `{"level":"cancel_tasks"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), s.watchdog.LevelCount(core.RecoverySnapshot))
	assert.Equal(t, int64(1), s.watchdog.LevelCount(core.RecoveryCancelTasks))

	rec = doRequest(t, s, http.MethodPost, "/api/v1/recovery/trigger", `{"level":"defcon1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/recovery/trigger", `{"level":"none"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/recovery/trigger", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_NilComponentsAnswer503(t *testing.T) {
	s := NewServer(nil, nil, nil, nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, doRequest(t, s, http.MethodGet, "/api/v1/snapshots", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(t, s, http.MethodGet, "/api/v1/snapshots/latest", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(t, s, http.MethodPost, "/api/v1/recovery/trigger", `{"level":"snapshot"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doRequest(t, s, http.MethodPost, "/api/v1/memory/cleanup", "").Code)

	// Health and status still answer.
	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/api/v1/status", "").Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_SSEStreamsEvents(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	bus := events.New(10)
	defer bus.Close()
	s := NewServer(store, nil, nil, nil, bus)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		// Give the subscription a moment to register.
		time.Sleep(100 * time.Millisecond)
		bus.Publish(events.NewWatchdogRecoveredEvent(core.RecoverySnapshot))
	}()

	buf := make([]byte, 4096)
	var collected strings.Builder
	for !strings.Contains(collected.String(), "watchdog_recovered") {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("stream ended early: %v (got %q)", err, collected.String())
		}
		collected.Write(buf[:n])
	}
}
