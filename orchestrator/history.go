package orchestrator

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calvinmclean/sortcell"
)

// History keeps the most recent cycle records. Records are visible while their cycle is still running
type History struct {
	mtx     sync.RWMutex
	size    int
	records []*sortcell.CycleRecord
	total   int
}

// NewHistory keeps at most size records. size <= 0 keeps 1
func NewHistory(size int) *History {
	return &History{size: max(size, 1)}
}

// begin creates a record for a new cycle and evicts the oldest if full
func (h *History) begin(start time.Time) string {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	r := &sortcell.CycleRecord{
		ID:       uuid.NewString(),
		Material: sortcell.MaterialUnknown,
		Start:    start,
	}
	if len(h.records) == h.size {
		h.records = slices.Delete(h.records, 0, 1)
	}
	h.records = append(h.records, r)
	h.total++
	return r.ID
}

func (h *History) update(id string, fn func(*sortcell.CycleRecord)) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	for _, r := range h.records {
		if r.ID == id {
			fn(r)
			return
		}
	}
}

func (h *History) event(id string, t time.Time, msg string) {
	h.update(id, func(r *sortcell.CycleRecord) {
		r.Events = append(r.Events, sortcell.Event{Time: t, Message: msg})
	})
}

// Get returns a copy of the record with id
func (h *History) Get(id string) (sortcell.CycleRecord, bool) {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	for _, r := range h.records {
		if r.ID == id {
			return clone(r), true
		}
	}
	return sortcell.CycleRecord{}, false
}

// List returns copies of every kept record, oldest first
func (h *History) List() []sortcell.CycleRecord {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	out := make([]sortcell.CycleRecord, 0, len(h.records))
	for _, r := range h.records {
		out = append(out, clone(r))
	}
	return out
}

// Last is the most recent record
func (h *History) Last() (sortcell.CycleRecord, bool) {
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	if len(h.records) == 0 {
		return sortcell.CycleRecord{}, false
	}
	return clone(h.records[len(h.records)-1]), true
}

// Total counts every cycle ever started, including evicted ones
func (h *History) Total() int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return h.total
}

func clone(r *sortcell.CycleRecord) sortcell.CycleRecord {
	c := *r
	c.Events = slices.Clone(r.Events)
	return c
}
