package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/metrics"
)

const defaultMaxTasks = 8

// Task is the handle for one background device operation
type Task struct {
	key  string
	done chan struct{}
	err  error
}

// Done is closed when the operation returns
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Finished reports completion without blocking
func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err is the operation's result. It is only meaningful once Finished
func (t *Task) Err() error {
	if !t.Finished() {
		return nil
	}
	return t.err
}

// Wait blocks until the operation returns or ctx is done
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatcher runs device operations in the background with at most one in flight per device and a
// global cap across devices
type Dispatcher struct {
	sem     *semaphore.Weighted
	mtx     sync.Mutex
	running map[string]*Task
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(maxTasks int, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if maxTasks <= 0 {
		maxTasks = defaultMaxTasks
	}
	return &Dispatcher{
		sem:     semaphore.NewWeighted(int64(maxTasks)),
		running: map[string]*Task{},
		logger:  logger,
		metrics: m,
	}
}

// Go starts fn for key unless key already has a task in flight or the pool is full. Both cases are
// reported as sortcell.ErrAlreadyRunning since the caller's answer is the same
func (d *Dispatcher) Go(key string, fn func() error) (*Task, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if _, busy := d.running[key]; busy {
		return nil, sortcell.ErrAlreadyRunning
	}
	if !d.sem.TryAcquire(1) {
		return nil, fmt.Errorf("%w: dispatcher at capacity", sortcell.ErrAlreadyRunning)
	}

	task := &Task{key: key, done: make(chan struct{})}
	d.running[key] = task
	d.wg.Add(1)
	d.metrics.DeviceRunning.WithLabelValues(key).Set(1)

	go func() {
		defer d.wg.Done()

		task.err = fn()
		if task.err != nil {
			d.logger.Warn("device operation failed", "device", key, "error", task.err)
		}

		d.mtx.Lock()
		delete(d.running, key)
		d.mtx.Unlock()
		d.sem.Release(1)
		d.metrics.DeviceRunning.WithLabelValues(key).Set(0)

		close(task.done)
	}()

	return task, nil
}

// Busy reports whether key has a task in flight
func (d *Dispatcher) Busy(key string) bool {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	_, busy := d.running[key]
	return busy
}

// Wait blocks until every task has returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
