package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calvinmclean/sortcell"
)

// Coordinator is the part of client.Coordinator the panel uses
type Coordinator interface {
	Start(ctx context.Context) error
	SetStop(ctx context.Context, stopped bool) error
	Status(ctx context.Context) (sortcell.Status, error)
	History(ctx context.Context) ([]sortcell.CycleRecord, error)
	Logs(ctx context.Context, id string) (string, error)
}

// controllerWrapper puts a timeout on every call and turns results into text for the panel
type controllerWrapper struct {
	coordinator Coordinator
	timeout     time.Duration
}

func (c *controllerWrapper) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *controllerWrapper) Start(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.coordinator.Start(ctx)
	switch {
	case errors.Is(err, sortcell.ErrStopRequested):
		return errors.New("clear the stop before starting")
	case errors.Is(err, sortcell.ErrAlreadyRunning):
		return nil
	case err != nil:
		return fmt.Errorf("error starting: %w", err)
	}
	return nil
}

// ToggleStop sets the stop flag unless it is currently set, in which case it clears it
func (c *controllerWrapper) ToggleStop(ctx context.Context, current panelState) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	err := c.coordinator.SetStop(ctx, !current.status.Stopped)
	if err != nil {
		return fmt.Errorf("error setting stop: %w", err)
	}
	return nil
}

func (c *controllerWrapper) Refresh(ctx context.Context) panelState {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	status, err := c.coordinator.Status(ctx)
	return panelState{status: status, err: err}
}

// Recent returns the most recent cycles, newest first, and the start time of one still running
func (c *controllerWrapper) Recent(ctx context.Context, n int) ([]sortcell.CycleRecord, time.Time, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	records, err := c.coordinator.History(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("error getting history: %w", err)
	}

	var running time.Time
	if len(records) > 0 && records[len(records)-1].End.IsZero() {
		running = records[len(records)-1].Start
	}

	out := make([]sortcell.CycleRecord, 0, n)
	for i := len(records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, records[i])
	}
	return out, running, nil
}

func (c *controllerWrapper) Logs(ctx context.Context, id string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.coordinator.Logs(ctx, id)
}
