package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/calvinmclean/babyapi"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/retry"
)

type cycleRecord struct {
	// include NilResource so we don't implement Render/Bind which are not needed
	*babyapi.NilResource
	sortcell.CycleRecord
}

func (r cycleRecord) GetID() string {
	return r.ID
}

// Coordinator calls the coordinator node
type Coordinator struct {
	caller
	history *babyapi.Client[*cycleRecord]
	logs    *babyapi.Client[*resource]
}

func NewCoordinator(addr string, cfg retry.Config) *Coordinator {
	c := newCaller(addr, cfg)
	return &Coordinator{
		caller:  c,
		history: babyapi.NewClient[*cycleRecord](c.addr, "/history"),
		logs:    babyapi.NewClient[*resource](c.addr, "/logs"),
	}
}

// Start asks the coordinator to begin its cycle loop
func (c *Coordinator) Start(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodGet, c.url("/start", nil), nil)
	if err != nil {
		return err
	}

	switch strings.TrimSpace(body) {
	case "OK":
		return nil
	case "ALREADY RUNNING":
		return sortcell.ErrAlreadyRunning
	case "STOPPED":
		return sortcell.ErrStopRequested
	default:
		return fmt.Errorf("%w: %s", ErrFailed, body)
	}
}

// SetStop sets or clears the coordinator's stop flag
func (c *Coordinator) SetStop(ctx context.Context, stopped bool) error {
	v := "0"
	if stopped {
		v = "1"
	}
	return c.action(ctx, http.MethodGet, c.url("/stop", url.Values{"stop": {v}}))
}

func (c *Coordinator) Status(ctx context.Context) (sortcell.Status, error) {
	var s sortcell.Status
	err := c.read(ctx, c.url("/status", nil), &s)
	return s, err
}

// History lists recorded cycles, oldest first
func (c *Coordinator) History(ctx context.Context) ([]sortcell.CycleRecord, error) {
	var list struct {
		Items []sortcell.CycleRecord `json:"items"`
	}
	err := c.read(ctx, c.url("/history", nil), &list)
	return list.Items, err
}

// Cycle fetches one recorded cycle
func (c *Coordinator) Cycle(ctx context.Context, id string) (sortcell.CycleRecord, error) {
	resp, err := c.history.Get(ctx, id)
	if err != nil {
		return sortcell.CycleRecord{}, fmt.Errorf("error getting cycle %q: %w", id, err)
	}
	return resp.Data.CycleRecord, nil
}

// Logs returns a cycle's event log as text
func (c *Coordinator) Logs(ctx context.Context, id string) (string, error) {
	u, _ := c.logs.URL(id)
	return c.do(ctx, http.MethodGet, u, nil)
}
