package device

import (
	"sync"
	"sync/atomic"

	"github.com/calvinmclean/sortcell"
)

// activity is the running flag and stop signal shared by every actuator. Only one operation can hold
// it at a time and a stop only reaches an operation that holds it
type activity struct {
	running atomic.Bool

	mtx  sync.Mutex
	stop chan struct{}
}

func (a *activity) begin() (<-chan struct{}, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if !a.running.CompareAndSwap(false, true) {
		return nil, sortcell.ErrAlreadyRunning
	}
	a.stop = make(chan struct{})
	return a.stop, nil
}

func (a *activity) end() {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.stop = nil
	a.running.Store(false)
}

// halt signals the current operation and reports whether there was one
func (a *activity) halt() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.stop == nil {
		return false
	}
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
	return true
}

// Operation is an actuator action that already holds its device. A stop that arrives before Run
// starts still reaches it. Exactly one of Run or Cancel must be called
type Operation struct {
	a    *activity
	stop <-chan struct{}
	fn   func(stop <-chan struct{}) error
}

func (a *activity) claim(fn func(stop <-chan struct{}) error) (*Operation, error) {
	stop, err := a.begin()
	if err != nil {
		return nil, err
	}
	return &Operation{a: a, stop: stop, fn: fn}, nil
}

// Run performs the operation and releases the device
func (o *Operation) Run() error {
	defer o.a.end()
	return o.fn(o.stop)
}

// Cancel releases the device without acting
func (o *Operation) Cancel() {
	o.a.end()
}

func (a *activity) Running() bool {
	return a.running.Load()
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
