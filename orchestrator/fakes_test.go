package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/device"
	"github.com/calvinmclean/sortcell/logging"
	"github.com/calvinmclean/sortcell/metrics"
	"github.com/calvinmclean/sortcell/node"
)

// recorder is shared by the fake nodes so tests can compare one ordered call list
type recorder struct {
	mtx   sync.Mutex
	calls []string
	hooks map[string]func()
}

func (r *recorder) record(format string, args ...any) {
	call := fmt.Sprintf(format, args...)

	r.mtx.Lock()
	r.calls = append(r.calls, call)
	hook := r.hooks[call]
	r.mtx.Unlock()

	if hook != nil {
		hook()
	}
}

func (r *recorder) on(call string, hook func()) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.hooks == nil {
		r.hooks = map[string]func(){}
	}
	r.hooks[call] = hook
}

func (r *recorder) Calls() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) reset() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.calls = nil
}

type fakeMotors struct {
	*recorder
	servoErr   error
	stepperErr map[int]error
	busyPolls  int
	pingErr    error
}

var _ Motors = &fakeMotors{}

func (m *fakeMotors) Stepper(_ context.Context, id, steps, speed int) error {
	m.record("motors.stepper %d %d %d", id, steps, speed)
	return m.stepperErr[id]
}

func (m *fakeMotors) StepperStatus(_ context.Context, id int) (node.StepperStatus, error) {
	m.record("motors.status %d", id)
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.busyPolls > 0 {
		m.busyPolls--
		return node.StepperStatus{Running: true}, nil
	}
	return node.StepperStatus{}, nil
}

func (m *fakeMotors) Servo(_ context.Context, id, angle int) error {
	m.record("motors.servo %d %d", id, angle)
	return m.servoErr
}

func (m *fakeMotors) Motor(_ context.Context, id int, d time.Duration, direction int) error {
	m.record("motors.motor %d %s %d", id, d, direction)
	return nil
}

func (m *fakeMotors) Stop(context.Context) error {
	m.record("motors.stop")
	return nil
}

func (m *fakeMotors) Ping(context.Context) error {
	return m.pingErr
}

type fakeSensors struct {
	*recorder
	metal    bool
	metalErr error
	colour   device.Colour
	placed   bool
	pingErr  error
}

var _ Sensors = &fakeSensors{}

func (s *fakeSensors) Colour(context.Context) (device.Colour, error) {
	s.record("sensors.colour")
	return s.colour, nil
}

func (s *fakeSensors) Metal(context.Context) (bool, error) {
	s.record("sensors.metal")
	return s.metal, s.metalErr
}

func (s *fakeSensors) Piezo(_ context.Context, id int, _ time.Duration) (bool, error) {
	s.record("sensors.piezo %d", id)
	return s.placed, nil
}

func (s *fakeSensors) Relay(_ context.Context, id int, enable bool) error {
	s.record("sensors.relay %d %t", id, enable)
	return nil
}

func (s *fakeSensors) Stop(context.Context) error {
	s.record("sensors.stop")
	return nil
}

func (s *fakeSensors) Release(context.Context) error {
	s.record("sensors.release")
	return nil
}

func (s *fakeSensors) Ping(context.Context) error {
	return s.pingErr
}

// testConfig is DefaultConfig with every wait shortened
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AlertDwell = 0
	cfg.Settle = 0
	cfg.RouteDuration = 0
	cfg.ReturnDuration = 0
	cfg.PlacementTimeout = 0
	cfg.IdlePoll = time.Millisecond
	cfg.IdleTimeout = time.Second
	cfg.Pause = time.Millisecond
	cfg.CallTimeout = time.Second
	cfg.StatusPingTimeout = time.Second
	cfg.Materials.Metal.Dispense.Hold = 0
	cfg.Materials.Wood.Dispense.Hold = 0
	cfg.Materials.Plastic.Dispense.Pulse = 0
	return cfg
}

type harness struct {
	o       *Orchestrator
	rec     *recorder
	motors  *fakeMotors
	sensors *fakeSensors
	flag    *sortcell.StopFlag
	metrics *metrics.Metrics
}

func newHarness(cfg Config) (*harness, error) {
	rec := &recorder{}
	h := &harness{
		rec:     rec,
		motors:  &fakeMotors{recorder: rec},
		sensors: &fakeSensors{recorder: rec, placed: true},
		flag:    sortcell.NewStopFlag(),
		metrics: metrics.New(),
	}

	var err error
	h.o, err = New(cfg, h.motors, h.sensors, h.flag, logging.Discard(), h.metrics)
	return h, err
}
