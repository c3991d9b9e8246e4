package sortcell

import (
	"sync"
)

// StopFlag is the process-wide stop signal. It is level-triggered: readers check it at their own
// checkpoints. Changed returns a channel that is closed on the next transition, so blocking waits can
// wake early and then re-check the level
type StopFlag struct {
	mtx     sync.Mutex
	stopped bool
	changed chan struct{}
}

// NewStopFlag returns a cleared StopFlag
func NewStopFlag() *StopFlag {
	return &StopFlag{changed: make(chan struct{})}
}

// Stopped reports the current level
func (f *StopFlag) Stopped() bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.stopped
}

// Set changes the level and wakes any waiters. It returns true if the level actually changed
func (f *StopFlag) Set(stopped bool) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	if f.stopped == stopped {
		return false
	}
	f.stopped = stopped
	close(f.changed)
	f.changed = make(chan struct{})
	return true
}

// Toggle flips the level and returns the new value
func (f *StopFlag) Toggle() bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	f.stopped = !f.stopped
	close(f.changed)
	f.changed = make(chan struct{})
	return f.stopped
}

// Changed returns a channel closed on the next transition
func (f *StopFlag) Changed() <-chan struct{} {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.changed
}
