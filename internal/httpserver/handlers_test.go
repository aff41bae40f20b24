package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/quota-watcher-controller/internal/infra/appstate"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/pinger"
	"github.com/skillcoder/quota-watcher-controller/internal/infra/supervisor"
)

type fakeAppState struct {
	healthy bool
	ready   bool
	state   appstate.State
	started time.Time
	stats   map[string]pinger.Statistics
}

func (f *fakeAppState) IsHealthy() bool                          { return f.healthy }
func (f *fakeAppState) IsReady() bool                            { return f.ready }
func (f *fakeAppState) GetState() appstate.State                 { return f.state }
func (f *fakeAppState) GetUptime() time.Duration                 { return time.Since(f.started) }
func (f *fakeAppState) GetStartTime() time.Time                  { return f.started }
func (f *fakeAppState) GetAllStats() map[string]pinger.Statistics { return f.stats }

type fakeTaskViewer struct {
	views []supervisor.TaskView
}

func (f *fakeTaskViewer) Views() []supervisor.TaskView { return f.views }

func newRunningState() *fakeAppState {
	return &fakeAppState{
		healthy: true,
		ready:   true,
		state:   appstate.StateRunning,
		started: time.Now().Add(-time.Minute),
		stats: map[string]pinger.Statistics{
			"watcher": {LastPing: time.Now(), Successes: 4},
		},
	}
}

func TestHandleHealthz(t *testing.T) {
	t.Parallel()

	state := newRunningState()
	server := New(slog.Default(), state, &fakeTaskViewer{}, "0")

	rec := httptest.NewRecorder()
	server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/-/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	state.healthy = false

	rec = httptest.NewRecorder()
	server.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/-/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleReadyz(t *testing.T) {
	t.Parallel()

	state := newRunningState()
	state.ready = false
	server := New(slog.Default(), state, &fakeTaskViewer{}, "0")

	rec := httptest.NewRecorder()
	server.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/-/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	state.ready = true

	rec = httptest.NewRecorder()
	server.handleReadyz(rec, httptest.NewRequest(http.MethodGet, "/-/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	t.Parallel()

	server := New(slog.Default(), newRunningState(), &fakeTaskViewer{}, "0")

	rec := httptest.NewRecorder()
	server.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/-/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, string(appstate.StateRunning), status.State)
	require.Contains(t, status.Components, "watcher")
	require.Positive(t, status.UptimeSec)
}

func TestHandleTasks(t *testing.T) {
	t.Parallel()

	tasks := &fakeTaskViewer{views: []supervisor.TaskView{
		{Name: "resync/cluster-a", StartedAt: time.Now(), RestartCount: 0},
		{Name: "watch/cluster-a/sessions", StartedAt: time.Now(), RestartCount: 2},
	}}
	server := New(slog.Default(), newRunningState(), tasks, "0")

	rec := httptest.NewRecorder()
	server.handleTasks(rec, httptest.NewRequest(http.MethodGet, "/-/tasks", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var response tasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Tasks, 2)
	require.Equal(t, "resync/cluster-a", response.Tasks[0].Name)
	require.EqualValues(t, 2, response.Tasks[1].RestartCount)
}

func TestServerPingBeforeStart(t *testing.T) {
	t.Parallel()

	server := New(slog.Default(), newRunningState(), &fakeTaskViewer{}, "0")

	require.Error(t, server.Ping(t.Context()))
}
