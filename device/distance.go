package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/hal"
)

const (
	defaultEchoTimeout = 30 * time.Millisecond
	triggerPulse       = 10 * time.Microsecond
	// round trip microseconds per centimetre
	usPerCentimetre = 58.0
)

// DistanceSensor is an HC-SR04 ultrasonic ranger
type DistanceSensor struct {
	mtx     sync.Mutex
	trigger hal.OutputPin
	echo    hal.InputPin
	timeout time.Duration
}

func NewDistanceSensor(board hal.Board, cfg DistanceSensorConfig) (*DistanceSensor, error) {
	trigger, err := board.Output(cfg.TriggerPin)
	if err != nil {
		return nil, fmt.Errorf("error configuring trigger pin: %w", err)
	}
	echo, err := board.Input(cfg.EchoPin, hal.PullNone)
	if err != nil {
		return nil, fmt.Errorf("error configuring echo pin: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEchoTimeout
	}
	trigger.Set(false)
	return &DistanceSensor{trigger: trigger, echo: echo, timeout: cfg.Timeout}, nil
}

// Centimetres fires one ping and times the echo
func (d *DistanceSensor) Centimetres() (float64, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.echo.Get() {
		return 0, fmt.Errorf("%w: echo already high", sortcell.ErrTimeout)
	}

	d.trigger.Set(true)
	busyWait(triggerPulse)
	d.trigger.Set(false)

	deadline := time.Now().Add(d.timeout)
	for !d.echo.Get() {
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%w: waiting for echo", sortcell.ErrTimeout)
		}
	}

	start := time.Now()
	for d.echo.Get() {
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%w: echo too long", sortcell.ErrTimeout)
		}
	}

	us := float64(time.Since(start).Microseconds())
	return us / usPerCentimetre, nil
}
