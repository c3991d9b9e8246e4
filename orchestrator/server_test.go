package orchestrator

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

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/client"
	"github.com/calvinmclean/sortcell/retry"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return w
}

func TestServer(t *testing.T) {
	h, err := newHarness(testConfig())
	require.NoError(t, err)
	h.sensors.metal = true
	router := h.o.Router()

	t.Run("Help", func(t *testing.T) {
		w := get(t, router, "/")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "GET /start: Start the continuous sort loop.")
		assert.Contains(t, w.Body.String(), "GET /stop [stop]")
	})

	t.Run("StopWhileIdle", func(t *testing.T) {
		w := get(t, router, "/stop?stop=1")
		assert.Equal(t, "OK", w.Body.String())
		assert.True(t, h.flag.Stopped())
	})

	t.Run("StartRefusedWhileStopped", func(t *testing.T) {
		w := get(t, router, "/start")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "STOPPED", w.Body.String())
	})

	t.Run("InvalidStopLevel", func(t *testing.T) {
		w := get(t, router, "/stop?stop=maybe")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "FAIL", w.Body.String())
		assert.True(t, h.flag.Stopped())
	})

	t.Run("ClearStop", func(t *testing.T) {
		w := get(t, router, "/stop?stop=0")
		assert.Equal(t, "OK", w.Body.String())
		assert.False(t, h.flag.Stopped())
	})

	rec := h.o.RunCycle(context.Background())

	t.Run("History", func(t *testing.T) {
		w := get(t, router, "/history")
		require.Equal(t, http.StatusOK, w.Code)

		var resp HistoryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Items, 1)
		assert.Equal(t, rec.ID, resp.Items[0].ID)
		assert.Equal(t, sortcell.MaterialMetal, resp.Items[0].Material)
		assert.Equal(t, sortcell.CycleOK, resp.Items[0].Result)
	})

	t.Run("Cycle", func(t *testing.T) {
		w := get(t, router, "/history/"+rec.ID)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"material":"metal"`)

		w = get(t, router, "/history/missing")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Logs", func(t *testing.T) {
		w := get(t, router, "/logs/"+rec.ID)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.HasPrefix(w.Body.String(), "cycle "+rec.ID+" material=metal result=OK\n"))
		assert.Contains(t, w.Body.String(), "sensors relay 3 on")

		w = get(t, router, "/logs/missing")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Status", func(t *testing.T) {
		w := get(t, router, "/status")
		require.Equal(t, http.StatusOK, w.Code)

		var status sortcell.Status
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "idle", status.State)
		assert.Equal(t, sortcell.PositionMetal, status.Position)
		assert.Equal(t, "working", status.Nodes["motors"])
	})

	t.Run("Metrics", func(t *testing.T) {
		w := get(t, router, "/metrics")
		assert.Contains(t, w.Body.String(), `sortcell_orchestrator_cycles_total{material="metal",result="OK"} 1`)
	})
}

func TestCoordinatorClient(t *testing.T) {
	h, err := newHarness(testConfig())
	require.NoError(t, err)
	h.sensors.metal = true
	server := httptest.NewServer(h.o.Router())
	defer server.Close()
	defer h.o.Close()

	c := client.NewCoordinator(server.URL, retry.Once())
	ctx := context.Background()

	require.NoError(t, c.SetStop(ctx, true))
	require.ErrorIs(t, c.Start(ctx), sortcell.ErrStopRequested)
	require.NoError(t, c.SetStop(ctx, false))

	require.NoError(t, c.Start(ctx))
	require.Eventually(t, func() bool {
		return h.o.History().Total() >= 1 && h.o.History().List()[0].Result != ""
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, c.SetStop(ctx, true))
	require.Eventually(t, func() bool {
		return !h.o.Running()
	}, 5*time.Second, time.Millisecond)

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Stopped)
	assert.False(t, status.Running)
	assert.Equal(t, "stopped", status.State)

	history, err := c.History(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	first := history[0]
	assert.Equal(t, sortcell.CycleOK, first.Result)

	cycle, err := c.Cycle(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, cycle.ID)
	assert.Equal(t, sortcell.MaterialMetal, cycle.Material)

	logs, err := c.Logs(ctx, first.ID)
	require.NoError(t, err)
	assert.Contains(t, logs, "classified as metal")
}
