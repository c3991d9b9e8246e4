// Package orchestrator runs the sort cycle on the coordinator. It drives the motor and sensor nodes
// over HTTP, owns the position of the delivery ring and keeps a history of cycles
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/device"
	"github.com/calvinmclean/sortcell/metrics"
	"github.com/calvinmclean/sortcell/node"
	"github.com/calvinmclean/sortcell/position"
)

// Motors is the motor node as seen by the orchestrator
type Motors interface {
	Stepper(ctx context.Context, id, steps, speed int) error
	StepperStatus(ctx context.Context, id int) (node.StepperStatus, error)
	Servo(ctx context.Context, id, angle int) error
	Motor(ctx context.Context, id int, d time.Duration, direction int) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Sensors is the sensor node as seen by the orchestrator
type Sensors interface {
	Colour(ctx context.Context) (device.Colour, error)
	Metal(ctx context.Context) (bool, error)
	Piezo(ctx context.Context, id int, timeout time.Duration) (bool, error)
	Relay(ctx context.Context, id int, enable bool) error
	Stop(ctx context.Context) error
	Release(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Orchestrator sequences sort cycles. It is the only writer of the ring position
type Orchestrator struct {
	cfg     Config
	motors  Motors
	sensors Sensors
	flag    *sortcell.StopFlag
	tracker *position.Tracker
	history *History

	mtx    sync.Mutex
	state  State
	cancel context.CancelFunc

	running atomic.Bool
	wg      sync.WaitGroup

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New validates cfg and creates an idle Orchestrator
func New(cfg Config, motors Motors, sensors Sensors, flag *sortcell.StopFlag, logger *slog.Logger, m *metrics.Metrics) (*Orchestrator, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid coordinator config: %w", err)
	}

	policy, _ := position.ParsePolicy(cfg.PositionPolicy)
	var start sortcell.Position
	_ = cfg.startPosition(&start)

	tracker, err := position.NewTracker(start, cfg.StepsPerSegment, policy)
	if err != nil {
		return nil, fmt.Errorf("error creating position tracker: %w", err)
	}

	return &Orchestrator{
		cfg:     cfg,
		motors:  motors,
		sensors: sensors,
		flag:    flag,
		tracker: tracker,
		history: NewHistory(cfg.HistorySize),
		logger:  logger,
		metrics: m,
	}, nil
}

func (o *Orchestrator) History() *History {
	return o.history
}

// Position is the tracked ring position
func (o *Orchestrator) Position() sortcell.Position {
	return o.tracker.Current()
}

func (o *Orchestrator) State() State {
	o.mtx.Lock()
	defer o.mtx.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mtx.Lock()
	prev := o.state
	o.state = s
	o.mtx.Unlock()

	if prev != s {
		o.logger.Debug("state changed", "from", prev, "to", s)
	}
}

// Running reports whether the cycle loop is active
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Start launches the continuous cycle loop. It refuses while the stop flag is set or a loop is
// already running
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.flag.Stopped() {
		return sortcell.ErrStopRequested
	}
	if !o.running.CompareAndSwap(false, true) {
		return sortcell.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	o.mtx.Lock()
	o.cancel = cancel
	o.mtx.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.running.Store(false)
		defer cancel()
		o.loop(ctx)
	}()

	o.logger.Info("started cycle loop")
	return nil
}

func (o *Orchestrator) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			o.logger.Info("cycle loop cancelled")
			return
		}
		if o.flag.Stopped() {
			o.logger.Info("stop flag set, leaving cycle loop")
			o.setState(StateStopped)
			o.safeStop(ctx, "")
			return
		}

		rec := o.RunCycle(ctx)
		if rec.Result == sortcell.CycleStopped {
			return
		}

		_ = sleep(ctx, o.flag, o.cfg.Pause)
	}
}

// Close cancels a running loop and waits for it to return
func (o *Orchestrator) Close() {
	o.mtx.Lock()
	cancel := o.cancel
	o.mtx.Unlock()

	if cancel != nil {
		cancel()
	}
	o.wg.Wait()
}

// SetStop sets the stop flag level. A running cycle unwinds at its next checkpoint and sends the
// safe-stop commands itself. When no loop is running they are sent here
func (o *Orchestrator) SetStop(ctx context.Context, stopped bool) {
	changed := o.flag.Set(stopped)
	o.metrics.SetStopped(stopped)
	if !changed {
		return
	}

	o.logger.Info("stop flag changed", "stopped", stopped)
	if !stopped {
		if o.State() == StateStopped {
			o.setState(StateIdle)
		}
		return
	}

	if !o.Running() {
		o.setState(StateStopped)
		o.safeStop(ctx, "")
	}
}

// safeStop sends /stop to both nodes. These are the only commands issued once the flag is set
func (o *Orchestrator) safeStop(ctx context.Context, cycleID string) {
	ctx = context.WithoutCancel(ctx)
	c := &cycle{o: o, ctx: ctx, id: cycleID}
	_ = c.call("motors", "stop", 0, o.motors.Stop)
	_ = c.call("sensors", "stop", 0, o.sensors.Stop)
}

// Status reports the orchestrator state and pings both nodes concurrently
func (o *Orchestrator) Status(ctx context.Context) sortcell.Status {
	status := sortcell.Status{
		State:    o.State().String(),
		Stopped:  o.flag.Stopped(),
		Running:  o.Running(),
		Position: o.tracker.Current(),
		Cycles:   o.history.Total(),
		Nodes:    map[string]string{},
	}
	if last, ok := o.history.Last(); ok {
		status.LastID = last.ID
	}

	var mtx sync.Mutex
	var g errgroup.Group
	for name, ping := range map[string]func(context.Context) error{
		"motors":  o.motors.Ping,
		"sensors": o.sensors.Ping,
	} {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, o.cfg.StatusPingTimeout)
			defer cancel()

			result := "working"
			err := ping(ctx)
			if err != nil {
				result = "failing: " + err.Error()
			}

			mtx.Lock()
			status.Nodes[name] = result
			mtx.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return status
}

// sleep waits for d and wakes early when the stop flag changes or ctx is done
func sleep(ctx context.Context, flag *sortcell.StopFlag, d time.Duration) error {
	changed := flag.Changed()
	err := checkpoint(ctx, flag)
	if err != nil || d <= 0 {
		return err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-changed:
	case <-ctx.Done():
	}
	return checkpoint(ctx, flag)
}

func checkpoint(ctx context.Context, flag *sortcell.StopFlag) error {
	if flag.Stopped() {
		return sortcell.ErrStopRequested
	}
	if ctx.Err() != nil {
		return errors.Join(sortcell.ErrStopRequested, ctx.Err())
	}
	return nil
}
