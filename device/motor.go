package device

import (
	"fmt"
	"time"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/hal"
)

const defaultMotorFrequency = 1000

// DCMotor is a brushed motor on one channel of an L298 H-bridge
type DCMotor struct {
	activity

	in1, in2 hal.OutputPin
	enable   hal.DutyCycle
	speed    uint16
}

func NewDCMotor(board hal.Board, cfg DCMotorConfig) (*DCMotor, error) {
	in1, err := board.Output(cfg.In1Pin)
	if err != nil {
		return nil, fmt.Errorf("error configuring in1 pin: %w", err)
	}
	in2, err := board.Output(cfg.In2Pin)
	if err != nil {
		return nil, fmt.Errorf("error configuring in2 pin: %w", err)
	}

	if cfg.Frequency == 0 {
		cfg.Frequency = defaultMotorFrequency
	}
	enable, err := board.PWM(cfg.EnablePin, cfg.Frequency)
	if err != nil {
		return nil, fmt.Errorf("error configuring enable pin: %w", err)
	}

	m := &DCMotor{in1: in1, in2: in2, enable: enable}
	m.SetSpeed(cfg.Speed)
	m.brake()
	return m, nil
}

// SetSpeed sets the duty used by the next Run. It is clamped to 0..1023
func (m *DCMotor) SetSpeed(speed int) {
	m.speed = uint16(min(max(speed, 0), hal.MaxDuty))
}

func (m *DCMotor) Speed() int {
	return int(m.speed)
}

func (m *DCMotor) brake() {
	m.enable.SetDuty(0)
	m.in1.Set(false)
	m.in2.Set(false)
}

// Run turns the motor in direction (1 forward, -1 reverse) for d then stops it. It blocks until
// finished or stopped
func (m *DCMotor) Run(d time.Duration, direction int) error {
	op, err := m.Prepare(d, direction)
	if err != nil {
		return err
	}
	return op.Run()
}

// Prepare validates a run and claims the motor for it
func (m *DCMotor) Prepare(d time.Duration, direction int) (*Operation, error) {
	if direction != 1 && direction != -1 {
		return nil, fmt.Errorf("%w: direction %d", sortcell.ErrOutOfRange, direction)
	}
	if d < 0 {
		return nil, fmt.Errorf("%w: duration %s", sortcell.ErrOutOfRange, d)
	}

	return m.claim(func(stop <-chan struct{}) error {
		m.run(stop, d, direction)
		return nil
	})
}

func (m *DCMotor) run(stop <-chan struct{}, d time.Duration, direction int) {
	if stopped(stop) {
		return
	}
	defer m.brake()

	m.in1.Set(direction == 1)
	m.in2.Set(direction == -1)
	m.enable.SetDuty(m.speed)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	}
}

// Stop interrupts a running Run
func (m *DCMotor) Stop() bool {
	return m.halt()
}
