package device

import (
	"fmt"
	"sync"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/hal"
)

const (
	MinAngle = 0
	MaxAngle = 180
	// defaultParkedAngle is where servos rest after a stop
	defaultParkedAngle = 180
	servoFrequency     = 50
)

// Servo bounds angles and remembers the last one
type Servo struct {
	mtx    sync.Mutex
	driver hal.ServoDriver
	parked int
	angle  int
}

// NewServo configures the servo on cfg.Pin and leaves it untouched until the first SetAngle
func NewServo(board hal.Board, cfg ServoConfig) (*Servo, error) {
	var driver hal.ServoDriver
	if cfg.MinDuty != 0 && cfg.MaxDuty != 0 {
		pwm, err := board.PWM(cfg.Pin, servoFrequency)
		if err != nil {
			return nil, fmt.Errorf("error configuring servo pwm: %w", err)
		}
		driver = NewDutyServo(pwm, cfg.MinDuty, cfg.MaxDuty)
	} else {
		var err error
		driver, err = board.Servo(cfg.Pin)
		if err != nil {
			return nil, fmt.Errorf("error creating servo: %w", err)
		}
	}

	parked := cfg.ParkedAngle
	if parked == 0 {
		parked = defaultParkedAngle
	}
	return &Servo{driver: driver, parked: parked, angle: -1}, nil
}

func (s *Servo) SetAngle(angle int) error {
	if angle < MinAngle || angle > MaxAngle {
		return fmt.Errorf("%w: angle %d", sortcell.ErrOutOfRange, angle)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	err := s.driver.SetAngle(angle)
	if err != nil {
		return fmt.Errorf("error setting servo angle: %w", err)
	}
	s.angle = angle
	return nil
}

// Angle returns the last angle set, or -1 if none has been
func (s *Servo) Angle() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.angle
}

// Park moves to the parked angle
func (s *Servo) Park() error {
	return s.SetAngle(s.parked)
}

// DutyServo maps angles linearly onto a raw PWM duty range
type DutyServo struct {
	pwm              hal.DutyCycle
	minDuty, maxDuty uint16
}

var _ hal.ServoDriver = DutyServo{}

func NewDutyServo(pwm hal.DutyCycle, minDuty, maxDuty uint16) DutyServo {
	return DutyServo{pwm, minDuty, maxDuty}
}

func (s DutyServo) SetAngle(angle int) error {
	if angle < MinAngle || angle > MaxAngle {
		return fmt.Errorf("%w: angle %d", sortcell.ErrOutOfRange, angle)
	}
	span := int(s.maxDuty) - int(s.minDuty)
	s.pwm.SetDuty(uint16(int(s.minDuty) + span*angle/MaxAngle))
	return nil
}
