package orchestrator

import (
	"fmt"
	"time"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/position"
	"github.com/calvinmclean/sortcell/retry"
)

// RelayMode says how a dispense relay is used
type RelayMode string

const (
	// RelayHold keeps the relay on for the whole dispense
	RelayHold RelayMode = "hold"
	// RelayPulse switches the relay on briefly between the advance and the return
	RelayPulse RelayMode = "pulse"
)

// Dispense advances a stepper, holds, then returns it by exactly the negated steps
type Dispense struct {
	Stepper   int           `yaml:"stepper"`
	Steps     int           `yaml:"steps"`
	Speed     int           `yaml:"speed"`
	Hold      time.Duration `yaml:"hold"`
	Relay     *int          `yaml:"relay"`
	RelayMode RelayMode     `yaml:"relay_mode"`
	Pulse     time.Duration `yaml:"pulse"`
}

// MaterialConfig is everything that differs by classification
type MaterialConfig struct {
	Relay    int      `yaml:"relay"`
	Servo    int      `yaml:"servo"`
	Piezo    int      `yaml:"piezo"`
	Dispense Dispense `yaml:"dispense"`
}

type Materials struct {
	Metal   MaterialConfig `yaml:"metal"`
	Plastic MaterialConfig `yaml:"plastic"`
	Wood    MaterialConfig `yaml:"wood"`
}

// For returns the settings for m. Unknown material has none
func (m Materials) For(material sortcell.Material) (MaterialConfig, bool) {
	switch material {
	case sortcell.MaterialMetal:
		return m.Metal, true
	case sortcell.MaterialPlastic:
		return m.Plastic, true
	case sortcell.MaterialWood:
		return m.Wood, true
	default:
		return MaterialConfig{}, false
	}
}

// ColourRule classifies a non-metal object as wood when green is above GreenMin and both red and
// blue are below their maximums
type ColourRule struct {
	GreenMin int `yaml:"green_min"`
	RedMax   int `yaml:"red_max"`
	BlueMax  int `yaml:"blue_max"`
}

// Config is the coordinator section of the config file
type Config struct {
	AlertRelays []int         `yaml:"alert_relays"`
	AlertDwell  time.Duration `yaml:"alert_dwell"`
	Settle      time.Duration `yaml:"settle"`

	Colour ColourRule `yaml:"colour"`

	ConveyorMotor     int           `yaml:"conveyor_motor"`
	ConveyorStepper   int           `yaml:"conveyor_stepper"`
	ConveyorSteps     int           `yaml:"conveyor_steps"`
	ConveyorSpeed     int           `yaml:"conveyor_speed"`
	RouteDirection    int           `yaml:"route_direction"`
	RouteAngle        int           `yaml:"route_angle"`
	RouteDuration     time.Duration `yaml:"route_duration"`
	ReturnDuration    time.Duration `yaml:"return_duration"`
	ParkedAngle       int           `yaml:"parked_angle"`
	PlacementTimeout  time.Duration `yaml:"placement_timeout"`
	GatePlacement     bool          `yaml:"gate_placement"`
	WaitForIdle       bool          `yaml:"wait_for_idle"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	IdlePoll          time.Duration `yaml:"idle_poll"`
	RotationStepper   int           `yaml:"rotation_stepper"`
	RotationSpeed     int           `yaml:"rotation_speed"`
	StepsPerSegment   int           `yaml:"steps_per_segment"`
	PositionPolicy    string        `yaml:"position_policy"`
	StartPosition     string        `yaml:"start_position"`
	Pause             time.Duration `yaml:"pause"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	HistorySize       int           `yaml:"history_size"`
	Retry             retry.Config  `yaml:"retry"`
	Materials         Materials     `yaml:"materials"`
	StatusPingTimeout time.Duration `yaml:"status_ping_timeout"`
}

func intPtr(i int) *int {
	return &i
}

// DefaultConfig is the timing and wiring of the reference cell
func DefaultConfig() Config {
	return Config{
		AlertRelays: []int{0, 4},
		AlertDwell:  3 * time.Second,
		Settle:      10 * time.Second,

		Colour: ColourRule{GreenMin: 20, RedMax: 20, BlueMax: 20},

		ConveyorMotor:     0,
		ConveyorStepper:   0,
		ConveyorSteps:     7000,
		ConveyorSpeed:     1000,
		RouteDirection:    -1,
		RouteAngle:        90,
		RouteDuration:     15 * time.Second,
		ReturnDuration:    15 * time.Second,
		ParkedAngle:       180,
		PlacementTimeout:  30 * time.Second,
		GatePlacement:     false,
		WaitForIdle:       true,
		IdleTimeout:       60 * time.Second,
		IdlePoll:          100 * time.Millisecond,
		RotationStepper:   4,
		RotationSpeed:     1000,
		StepsPerSegment:   position.DefaultStepsPerSegment,
		PositionPolicy:    position.PolicyOptimistic.String(),
		StartPosition:     sortcell.PositionPlastic.String(),
		Pause:             time.Second,
		CallTimeout:       5 * time.Second,
		HistorySize:       100,
		Retry:             retry.Once(),
		StatusPingTimeout: 2 * time.Second,

		Materials: Materials{
			Metal: MaterialConfig{
				Relay: 3, Servo: 2, Piezo: 2,
				Dispense: Dispense{Stepper: 3, Steps: 18000, Speed: 20000, Hold: 5 * time.Second},
			},
			Plastic: MaterialConfig{
				Relay: 2, Servo: 1, Piezo: 0,
				Dispense: Dispense{
					Stepper: 2, Steps: -20000, Speed: 4000,
					Relay: intPtr(5), RelayMode: RelayPulse, Pulse: time.Millisecond,
				},
			},
			Wood: MaterialConfig{
				Relay: 1, Servo: 0, Piezo: 0,
				Dispense: Dispense{
					Stepper: 1, Steps: 15000, Speed: 1000, Hold: 5 * time.Second,
					Relay: intPtr(1), RelayMode: RelayHold,
				},
			},
		},
	}
}

// Validate checks values that would otherwise fail mid-cycle
func (c Config) Validate() error {
	if c.RouteDirection != 1 && c.RouteDirection != -1 {
		return fmt.Errorf("route_direction must be 1 or -1, got %d", c.RouteDirection)
	}
	if c.ConveyorSpeed <= 0 || c.RotationSpeed <= 0 {
		return fmt.Errorf("%w: conveyor and rotation speeds must be positive", sortcell.ErrOutOfRange)
	}
	for _, a := range []int{c.RouteAngle, c.ParkedAngle} {
		if a < 0 || a > 180 {
			return fmt.Errorf("%w: angle %d", sortcell.ErrOutOfRange, a)
		}
	}
	for _, m := range []sortcell.Material{sortcell.MaterialMetal, sortcell.MaterialPlastic, sortcell.MaterialWood} {
		mc, _ := c.Materials.For(m)
		if mc.Dispense.Speed <= 0 {
			return fmt.Errorf("%w: %s dispense speed must be positive", sortcell.ErrOutOfRange, m)
		}
		switch mc.Dispense.RelayMode {
		case "", RelayHold, RelayPulse:
		default:
			return fmt.Errorf("invalid %s relay_mode %q", m, mc.Dispense.RelayMode)
		}
	}
	if _, err := position.ParsePolicy(c.PositionPolicy); err != nil {
		return err
	}
	if err := c.startPosition(new(sortcell.Position)); err != nil {
		return err
	}
	return nil
}

func (c Config) startPosition(p *sortcell.Position) error {
	if c.StartPosition == "" {
		*p = sortcell.PositionPlastic
		return nil
	}
	return p.UnmarshalText([]byte(c.StartPosition))
}
