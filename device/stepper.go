package device

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/hal"
)

const (
	defaultMinPulseWidth = 10 * time.Microsecond
	minPulseWidthFloor   = 1 * time.Microsecond
)

// StepDriver emits single steps
type StepDriver interface {
	Step(forward bool)
	Enable(bool)
}

// A4988 is a step/dir driver. The enable line is active low
type A4988 struct {
	step       hal.OutputPin
	dir        hal.OutputPin
	enable     hal.OutputPin
	pulseWidth time.Duration
}

var _ StepDriver = &A4988{}

func NewA4988(step, dir, enable hal.OutputPin, pulseWidth time.Duration) *A4988 {
	return &A4988{step: step, dir: dir, enable: enable, pulseWidth: pulseWidth}
}

func (d *A4988) Step(forward bool) {
	d.dir.Set(forward)
	d.step.Set(true)
	busyWait(d.pulseWidth)
	d.step.Set(false)
}

func (d *A4988) Enable(enabled bool) {
	if d.enable != nil {
		d.enable.Set(!enabled)
	}
}

var (
	// 8-step half-step halfStepSequence
	halfStepSequence = [8][4]bool{
		{true, false, false, false},
		{true, true, false, false},
		{false, true, false, false},
		{false, true, true, false},
		{false, false, true, false},
		{false, false, true, true},
		{false, false, false, true},
		{true, false, false, true},
	}

	// 4-step sequence
	fullStepSequence = [4][4]bool{
		{true, false, false, false},
		{false, true, false, false},
		{false, false, true, false},
		{false, false, false, true},
	}
)

// HBridge drives four coils directly
type HBridge struct {
	pins        [4]hal.OutputPin
	stepMode    StepMode
	currentStep int
}

var _ StepDriver = &HBridge{}

func NewHBridge(pins [4]hal.OutputPin, mode StepMode) (*HBridge, error) {
	if mode != StepModeFull && mode != StepModeHalf {
		return nil, errors.New("invalid StepMode")
	}
	return &HBridge{pins: pins, stepMode: mode}, nil
}

func (h *HBridge) applyStep() {
	var sequence [4]bool
	switch h.stepMode {
	default:
		fallthrough
	case StepModeFull:
		sequence = fullStepSequence[h.currentStep]
	case StepModeHalf:
		sequence = halfStepSequence[h.currentStep]
	}

	for i := range 4 {
		h.pins[i].Set(sequence[i])
	}
}

func (h *HBridge) Step(forward bool) {
	sequenceLen := 4
	if h.stepMode == StepModeHalf {
		sequenceLen = 8
	}

	if forward {
		h.currentStep = (h.currentStep + 1) % sequenceLen
	} else {
		h.currentStep = (h.currentStep - 1 + sequenceLen) % sequenceLen
	}
	h.applyStep()
}

// Enable energizes the current coil pattern or releases every coil
func (h *HBridge) Enable(enabled bool) {
	if enabled {
		h.applyStep()
		return
	}
	for _, p := range h.pins {
		p.Set(false)
	}
}

// Stepper paces a StepDriver and tracks its absolute position
type Stepper struct {
	activity

	driver   StepDriver
	cfg      StepperConfig
	position atomic.Int64

	// only touched by the drive holding the activity
	lastStep time.Time
}

// NewStepper builds the driver described by cfg from the Board's pins
func NewStepper(board hal.Board, cfg StepperConfig) (*Stepper, error) {
	if cfg.MinPulseWidth == 0 {
		cfg.MinPulseWidth = defaultMinPulseWidth
	}
	if cfg.MinPulseWidth < minPulseWidthFloor {
		cfg.MinPulseWidth = minPulseWidthFloor
	}
	if cfg.Bounded && cfg.Min > cfg.Max {
		return nil, fmt.Errorf("invalid bounds [%d, %d]", cfg.Min, cfg.Max)
	}

	var driver StepDriver
	switch {
	case len(cfg.Coils) == 4:
		var pins [4]hal.OutputPin
		for i, c := range cfg.Coils {
			p, err := board.Output(c)
			if err != nil {
				return nil, fmt.Errorf("error configuring coil %d: %w", i, err)
			}
			pins[i] = p
		}

		var err error
		driver, err = NewHBridge(pins, cfg.StepMode)
		if err != nil {
			return nil, err
		}
	case len(cfg.Coils) == 0:
		step, err := board.Output(cfg.StepPin)
		if err != nil {
			return nil, fmt.Errorf("error configuring step pin: %w", err)
		}
		dir, err := board.Output(cfg.DirPin)
		if err != nil {
			return nil, fmt.Errorf("error configuring dir pin: %w", err)
		}

		var enable hal.OutputPin
		if cfg.EnablePin != nil {
			enable, err = board.Output(*cfg.EnablePin)
			if err != nil {
				return nil, fmt.Errorf("error configuring enable pin: %w", err)
			}
		}
		driver = NewA4988(step, dir, enable, cfg.MinPulseWidth)
	default:
		return nil, fmt.Errorf("expected 4 coils, got %d", len(cfg.Coils))
	}

	return NewStepperWithDriver(driver, cfg), nil
}

// NewStepperWithDriver wraps an existing StepDriver
func NewStepperWithDriver(driver StepDriver, cfg StepperConfig) *Stepper {
	return &Stepper{driver: driver, cfg: cfg}
}

// Position is the absolute step count since start-up
func (s *Stepper) Position() int {
	return int(s.position.Load())
}

func (s *Stepper) Enable() {
	s.driver.Enable(true)
}

func (s *Stepper) Disable() {
	s.driver.Enable(false)
}

// Stop halts a running Drive at its current count. It has no effect on an idle Stepper
func (s *Stepper) Stop() bool {
	return s.halt()
}

// Drive moves steps (negative is backwards) at speed steps per second and blocks until done or
// stopped
func (s *Stepper) Drive(steps, speed int) error {
	op, err := s.Prepare(steps, speed)
	if err != nil {
		return err
	}
	return op.Run()
}

// Prepare validates a drive and claims the Stepper for it so the caller can run it elsewhere. The
// bounds are checked here, while no other drive can move the position
func (s *Stepper) Prepare(steps, speed int) (*Operation, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("%w: speed %d", sortcell.ErrOutOfRange, speed)
	}
	if s.cfg.MaxSpeed > 0 && speed > s.cfg.MaxSpeed {
		speed = s.cfg.MaxSpeed
	}

	op, err := s.claim(func(stop <-chan struct{}) error {
		s.drive(stop, steps, speed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.cfg.Bounded {
		target := s.Position() + steps
		if target < s.cfg.Min || target > s.cfg.Max {
			op.Cancel()
			return nil, fmt.Errorf("%w: position %d outside [%d, %d]", sortcell.ErrOutOfRange, target, s.cfg.Min, s.cfg.Max)
		}
	}
	return op, nil
}

// drive issues each step no sooner than one period after the previous one, including the last
// step of an earlier drive
func (s *Stepper) drive(stop <-chan struct{}, steps, speed int) {
	forward := steps > 0
	count := steps
	var delta int64 = 1
	if !forward {
		count = -steps
		delta = -1
	}

	s.driver.Enable(true)
	if s.cfg.DisableWhenIdle {
		defer s.driver.Enable(false)
	}

	period := time.Second / time.Duration(speed)
	for range count {
		if stopped(stop) {
			return
		}
		waitUntil(s.lastStep.Add(period), stop)
		if stopped(stop) {
			return
		}

		s.lastStep = time.Now()
		s.driver.Step(forward)
		s.position.Add(delta)
	}
}

// waitUntil sleeps until deadline or until stop is closed. The last stretch is spun so short
// periods are not rounded up to the scheduler's granularity
func waitUntil(deadline time.Time, stop <-chan struct{}) {
	const spin = 200 * time.Microsecond

	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	if d > spin {
		t := time.NewTimer(d - spin)
		select {
		case <-t.C:
		case <-stop:
			t.Stop()
			return
		}
	}
	for time.Now().Before(deadline) {
	}
}

func busyWait(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
