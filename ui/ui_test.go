package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinmclean/sortcell"
)

type fakeCoordinator struct {
	startErr error
	stopped  []bool
	status   sortcell.Status
	err      error
	records  []sortcell.CycleRecord
}

func (f *fakeCoordinator) Start(context.Context) error { return f.startErr }

func (f *fakeCoordinator) SetStop(_ context.Context, stopped bool) error {
	f.stopped = append(f.stopped, stopped)
	return f.err
}

func (f *fakeCoordinator) Status(context.Context) (sortcell.Status, error) { return f.status, f.err }

func (f *fakeCoordinator) History(context.Context) ([]sortcell.CycleRecord, error) {
	return f.records, f.err
}

func (f *fakeCoordinator) Logs(_ context.Context, id string) (string, error) {
	return "cycle " + id, f.err
}

func TestPanelState(t *testing.T) {
	tests := []struct {
		name      string
		state     panelState
		title     string
		stopLabel string
		canStart  bool
	}{
		{
			"Idle",
			panelState{status: sortcell.Status{State: "idle"}},
			"Idle", "Emergency Stop", true,
		},
		{
			"Running",
			panelState{status: sortcell.Status{State: "awaiting_placement", Running: true}},
			"Running: Awaiting Placement", "Emergency Stop", false,
		},
		{
			"Stopped",
			panelState{status: sortcell.Status{State: "stopped", Stopped: true}},
			"STOPPED", "Clear Stop", false,
		},
		{
			"Unreachable",
			panelState{err: errors.New("connection refused")},
			"Unreachable", "Emergency Stop", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.title, tt.state.title())
			assert.Equal(t, tt.stopLabel, tt.state.stopLabel())
			assert.Equal(t, tt.canStart, tt.state.canStart())
		})
	}
}

func TestPanelStateDetails(t *testing.T) {
	state := panelState{status: sortcell.Status{
		State:    "idle",
		Position: sortcell.PositionWood,
		Cycles:   3,
		Nodes:    map[string]string{"sensors": "working", "motors": "failing: timeout"},
	}}
	assert.Equal(t, "Position: wood\nCycles: 3\nmotors: failing: timeout\nsensors: working", state.details())

	assert.Equal(t, "boom", panelState{err: errors.New("boom")}.details())
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", formatElapsed(0))
	assert.Equal(t, "01:05", formatElapsed(65*time.Second+300*time.Millisecond))
	assert.Equal(t, "61:00", formatElapsed(61*time.Minute))
}

func TestControllerWrapper(t *testing.T) {
	ctx := context.Background()

	t.Run("StartErrors", func(t *testing.T) {
		f := &fakeCoordinator{}
		ctrl := &controllerWrapper{coordinator: f, timeout: time.Second}

		require.NoError(t, ctrl.Start(ctx))

		f.startErr = sortcell.ErrAlreadyRunning
		require.NoError(t, ctrl.Start(ctx))

		f.startErr = sortcell.ErrStopRequested
		require.EqualError(t, ctrl.Start(ctx), "clear the stop before starting")

		f.startErr = sortcell.ErrRemoteUnreachable
		require.ErrorIs(t, ctrl.Start(ctx), sortcell.ErrRemoteUnreachable)
	})

	t.Run("ToggleStop", func(t *testing.T) {
		f := &fakeCoordinator{}
		ctrl := &controllerWrapper{coordinator: f, timeout: time.Second}

		require.NoError(t, ctrl.ToggleStop(ctx, panelState{}))
		require.NoError(t, ctrl.ToggleStop(ctx, panelState{status: sortcell.Status{Stopped: true}}))
		assert.Equal(t, []bool{true, false}, f.stopped)
	})

	t.Run("Recent", func(t *testing.T) {
		start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
		f := &fakeCoordinator{records: []sortcell.CycleRecord{
			{ID: "a", Start: start, End: start.Add(time.Minute), Result: sortcell.CycleOK},
			{ID: "b", Start: start.Add(2 * time.Minute), End: start.Add(3 * time.Minute), Result: sortcell.CycleFail},
			{ID: "c", Start: start.Add(4 * time.Minute)},
		}}
		ctrl := &controllerWrapper{coordinator: f, timeout: time.Second}

		records, running, err := ctrl.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "c", records[0].ID)
		assert.Equal(t, "b", records[1].ID)
		assert.Equal(t, start.Add(4*time.Minute), running)

		options := recordOptions(records)
		assert.Equal(t, []string{
			"10:04:00 unknown RUNNING c",
			"10:02:00 unknown FAIL b",
		}, options)
		assert.Equal(t, "c", optionID(options[0]))
		assert.Empty(t, optionID(""))
	})

	t.Run("RefreshError", func(t *testing.T) {
		f := &fakeCoordinator{err: sortcell.ErrRemoteUnreachable}
		ctrl := &controllerWrapper{coordinator: f, timeout: time.Second}

		state := ctrl.Refresh(ctx)
		require.ErrorIs(t, state.err, sortcell.ErrRemoteUnreachable)
		assert.Equal(t, "Unreachable", state.title())
	})
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{Addr: "http://process.ita"}.Validate())
	require.NoError(t, Config{Addr: "https://10.0.0.2:8080"}.Validate())
	require.EqualError(t, Config{}.Validate(), "missing coordinator address")
	require.Error(t, Config{Addr: "process.ita"}.Validate())
}
