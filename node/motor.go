package node

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/device"
	"github.com/calvinmclean/sortcell/hal"
	"github.com/calvinmclean/sortcell/metrics"
)

// MaxMotorDuration caps a single DC motor run
const MaxMotorDuration = 5 * time.Minute

// MotorNodeConfig lists the actuators in index order
type MotorNodeConfig struct {
	Steppers []device.StepperConfig `yaml:"steppers"`
	Servos   []device.ServoConfig   `yaml:"servos"`
	Motors   []device.DCMotorConfig `yaml:"motors"`
	MaxTasks int                    `yaml:"max_tasks"`
}

// StepperStatus is reported by GET /stepper/{id}
type StepperStatus struct {
	Running  bool `json:"running"`
	Position int  `json:"position"`
}

// MotorNode owns the steppers, servos and DC motors
type MotorNode struct {
	steppers   []*device.Stepper
	servos     []*device.Servo
	motors     []*device.DCMotor
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewMotorNode configures every device from the board
func NewMotorNode(board hal.Board, cfg MotorNodeConfig, logger *slog.Logger, m *metrics.Metrics) (*MotorNode, error) {
	n := &MotorNode{
		dispatcher: NewDispatcher(cfg.MaxTasks, logger, m),
		logger:     logger,
		metrics:    m,
	}

	for i, c := range cfg.Steppers {
		s, err := device.NewStepper(board, c)
		if err != nil {
			return nil, fmt.Errorf("error creating stepper %d: %w", i, err)
		}
		n.steppers = append(n.steppers, s)
	}
	for i, c := range cfg.Servos {
		s, err := device.NewServo(board, c)
		if err != nil {
			return nil, fmt.Errorf("error creating servo %d: %w", i, err)
		}
		n.servos = append(n.servos, s)
	}
	for i, c := range cfg.Motors {
		mtr, err := device.NewDCMotor(board, c)
		if err != nil {
			return nil, fmt.Errorf("error creating motor %d: %w", i, err)
		}
		n.motors = append(n.motors, mtr)
	}

	logger.Info("motor node ready", "steppers", len(n.steppers), "servos", len(n.servos), "motors", len(n.motors))
	return n, nil
}

func index[T any](devices []T, id int, kind string) (T, error) {
	var zero T
	if id < 0 || id >= len(devices) {
		return zero, fmt.Errorf("%w: %s %d", sortcell.ErrOutOfRange, kind, id)
	}
	return devices[id], nil
}

// Stepper starts a drive in the background
func (n *MotorNode) Stepper(id, steps, speed int) (*Task, error) {
	s, err := index(n.steppers, id, "stepper")
	if err != nil {
		return nil, err
	}

	op, err := s.Prepare(steps, speed)
	if err != nil {
		return nil, err
	}

	n.logger.Debug("driving stepper", "id", id, "steps", steps, "speed", speed)
	return n.dispatch(fmt.Sprintf("stepper/%d", id), op)
}

// StepperStatus reports whether a stepper is moving and where it is
func (n *MotorNode) StepperStatus(id int) (StepperStatus, error) {
	s, err := index(n.steppers, id, "stepper")
	if err != nil {
		return StepperStatus{}, err
	}
	return StepperStatus{Running: s.Running(), Position: s.Position()}, nil
}

// Servo moves a servo. It returns once the angle is commanded
func (n *MotorNode) Servo(id, angle int) error {
	s, err := index(n.servos, id, "servo")
	if err != nil {
		return err
	}
	return s.SetAngle(angle)
}

// Motor runs a DC motor in the background for d in direction 1 or -1
func (n *MotorNode) Motor(id int, d time.Duration, direction int) (*Task, error) {
	m, err := index(n.motors, id, "motor")
	if err != nil {
		return nil, err
	}
	if direction != 1 && direction != -1 {
		return nil, fmt.Errorf("%w: direction %d", sortcell.ErrOutOfRange, direction)
	}
	if d < 0 || d > MaxMotorDuration {
		return nil, fmt.Errorf("%w: duration %s", sortcell.ErrOutOfRange, d)
	}

	op, err := m.Prepare(d, direction)
	if err != nil {
		return nil, err
	}

	n.logger.Debug("running motor", "id", id, "duration", d, "direction", direction)
	return n.dispatch(fmt.Sprintf("motor/%d", id), op)
}

// dispatch runs an operation that already holds its device, so a StopAll issued before the task
// starts still reaches it
func (n *MotorNode) dispatch(key string, op *device.Operation) (*Task, error) {
	task, err := n.dispatcher.Go(key, op.Run)
	if err != nil {
		op.Cancel()
		return nil, err
	}
	return task, nil
}

// StopAll halts steppers at their current count, stops DC motors and parks servos
func (n *MotorNode) StopAll() {
	for _, s := range n.steppers {
		s.Stop()
	}
	for _, m := range n.motors {
		m.Stop()
	}
	for i, s := range n.servos {
		err := s.Park()
		if err != nil {
			n.logger.Error("failed to park servo", "id", i, "error", err)
		}
	}
	n.logger.Info("stopped all actuators")
}

// Wait blocks until every background operation has returned
func (n *MotorNode) Wait() {
	n.dispatcher.Wait()
}
