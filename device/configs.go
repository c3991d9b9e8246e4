package device

import (
	"time"
)

// StepMode selects the coil sequence used by an HBridge stepper
type StepMode int

const (
	StepModeFull StepMode = iota
	StepModeHalf
)

func (m StepMode) String() string {
	switch m {
	case StepModeHalf:
		return "half"
	default:
		fallthrough
	case StepModeFull:
		return "full"
	}
}

// UnmarshalText allows "full" and "half" in config files
func (m *StepMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "half":
		*m = StepModeHalf
	default:
		*m = StepModeFull
	}
	return nil
}

// StepperConfig describes one stepper. Either StepPin/DirPin (A4988) or Coils (H-bridge) is used
type StepperConfig struct {
	StepPin   int  `yaml:"step_pin"`
	DirPin    int  `yaml:"dir_pin"`
	EnablePin *int `yaml:"enable_pin"`

	Coils    []int    `yaml:"coils"`
	StepMode StepMode `yaml:"step_mode"`

	// MinPulseWidth is how long the step line is held high. Values under 1µs are raised to 1µs
	MinPulseWidth time.Duration `yaml:"min_pulse_width"`
	// MaxSpeed clamps the requested steps per second when non-zero
	MaxSpeed int `yaml:"max_speed"`
	// Min and Max bound the absolute position when Bounded is set
	Bounded bool `yaml:"bounded"`
	Min     int  `yaml:"min"`
	Max     int  `yaml:"max"`
	// DisableWhenIdle releases the coils after every drive
	DisableWhenIdle bool `yaml:"disable_when_idle"`
}

// DCMotorConfig has the L298 pins for one motor
type DCMotorConfig struct {
	In1Pin    int    `yaml:"in1_pin"`
	In2Pin    int    `yaml:"in2_pin"`
	EnablePin int    `yaml:"enable_pin"`
	Frequency uint64 `yaml:"frequency"`
	// Speed is the PWM duty while running, clamped to 0..1023
	Speed int `yaml:"speed"`
}

// ServoConfig has device-level values for setting up a Servo
type ServoConfig struct {
	Pin         int `yaml:"pin"`
	ParkedAngle int `yaml:"parked_angle"`
	// MinDuty and MaxDuty, when both set, drive the servo through a raw PWM channel mapping 0..180
	// linearly onto MinDuty..MaxDuty instead of using the board's servo driver
	MinDuty uint16 `yaml:"min_duty"`
	MaxDuty uint16 `yaml:"max_duty"`
}

// RelayConfig has the pin and wiring polarity for a relay
type RelayConfig struct {
	Pin       int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"`
}

// ColourSensorConfig has the I2C bus for a TCS34725
type ColourSensorConfig struct {
	SCLPin int `yaml:"scl_pin"`
	SDAPin int `yaml:"sda_pin"`
	// IntegrationTime is rounded to the sensor's 2.4ms cycles
	IntegrationTime time.Duration `yaml:"integration_time"`
	Gain            int           `yaml:"gain"`
}

// PiezoConfig has the ADC pin and touch detection values for a piezo
type PiezoConfig struct {
	Pin int `yaml:"pin"`
	// Threshold is how far a reading must differ from the baseline to count as touched
	Threshold    uint16        `yaml:"threshold"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

// DistanceSensorConfig has the HC-SR04 pins
type DistanceSensorConfig struct {
	TriggerPin int           `yaml:"trigger_pin"`
	EchoPin    int           `yaml:"echo_pin"`
	Timeout    time.Duration `yaml:"timeout"`
}
