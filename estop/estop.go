// Package estop watches the emergency stop button and toggles the stop flag on each press
package estop

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/hal"
	"github.com/calvinmclean/sortcell/metrics"
	"github.com/calvinmclean/sortcell/retry"
)

const (
	defaultPollInterval  = 10 * time.Millisecond
	defaultSettle        = 500 * time.Millisecond
	defaultNotifyTimeout = 2 * time.Second
)

// Edge selects which transition counts as a press
type Edge string

const (
	EdgeFalling Edge = "falling"
	EdgeRising  Edge = "rising"
)

// Config is the estop section of the config file
type Config struct {
	Pin           int           `yaml:"pin"`
	PullUp        bool          `yaml:"pull_up"`
	Edge          Edge          `yaml:"edge"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Settle        time.Duration `yaml:"settle"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"`
	Notify        retry.Config  `yaml:"notify"`
}

// State is the monitor's view of the button
type State int

const (
	StateArmed State = iota
	StateTripped
)

func (s State) String() string {
	switch s {
	case StateTripped:
		return "tripped"
	default:
		fallthrough
	case StateArmed:
		return "armed"
	}
}

// Notifier tells the coordinator about a new stop level
type Notifier interface {
	SetStop(ctx context.Context, stopped bool) error
}

type noopNotifier struct{}

var _ Notifier = noopNotifier{}

// SetStop implements Notifier.
func (noopNotifier) SetStop(context.Context, bool) error {
	return nil
}

// Monitor polls the button input
type Monitor struct {
	input    hal.InputPin
	flag     *sortcell.StopFlag
	notifier Notifier
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	state    atomic.Int32
}

// New creates a Monitor. A nil notifier only updates the local flag
func New(input hal.InputPin, flag *sortcell.StopFlag, notifier Notifier, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Monitor, error) {
	switch cfg.Edge {
	case "":
		cfg.Edge = EdgeFalling
	case EdgeFalling, EdgeRising:
	default:
		return nil, fmt.Errorf("invalid edge %q", cfg.Edge)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	state := StateArmed
	if flag.Stopped() {
		state = StateTripped
	}

	mon := &Monitor{
		input:    input,
		flag:     flag,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
	mon.state.Store(int32(state))
	return mon, nil
}

func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Run polls until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitoring emergency stop", "edge", m.cfg.Edge, "state", m.State())

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	last := m.input.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		level := m.input.Get()
		if level == last {
			continue
		}

		pressed := (m.cfg.Edge == EdgeFalling && last && !level) || (m.cfg.Edge == EdgeRising && !last && level)
		last = level
		if pressed {
			m.press(ctx)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.cfg.Settle):
		}
	}
}

func (m *Monitor) press(ctx context.Context) {
	stopped := m.flag.Toggle()
	state := StateArmed
	if stopped {
		state = StateTripped
	}
	m.state.Store(int32(state))
	m.metrics.EstopEdges.WithLabelValues(state.String()).Inc()
	m.metrics.SetStopped(stopped)
	m.logger.Warn("emergency stop pressed", "state", state)

	err := retry.Do(ctx, m.cfg.Notify, func() error {
		ctx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
		defer cancel()
		return m.notifier.SetStop(ctx, stopped)
	})
	if err != nil {
		m.logger.Error("failed to notify coordinator", "stopped", stopped, "error", err)
	}
}
