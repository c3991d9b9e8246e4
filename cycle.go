package sortcell

import (
	"time"
)

// CycleResult is the outcome of one sort cycle
type CycleResult string

const (
	CycleOK      CycleResult = "OK"
	CycleFail    CycleResult = "FAIL"
	CycleStopped CycleResult = "STOPPED"
)

// Event is one timestamped line in a cycle's log
type Event struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// CycleRecord is the history entry kept by the coordinator for each cycle
type CycleRecord struct {
	ID       string      `json:"id"`
	Material Material    `json:"material"`
	Result   CycleResult `json:"result"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end,omitzero"`
	Events   []Event     `json:"events,omitempty"`
}

// Duration is the wall time of a finished cycle, or the time so far for one in progress
func (r CycleRecord) Duration() time.Duration {
	if r.End.IsZero() {
		return time.Since(r.Start)
	}
	return r.End.Sub(r.Start)
}

// Status is the coordinator's view of the cell
type Status struct {
	State    string            `json:"state"`
	Stopped  bool              `json:"stopped"`
	Running  bool              `json:"running"`
	Position Position          `json:"position"`
	Cycles   int               `json:"cycles"`
	LastID   string            `json:"last_id,omitempty"`
	Nodes    map[string]string `json:"nodes,omitempty"`
}
