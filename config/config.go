// Package config loads the YAML file shared by every sortcell process. Each subcommand reads only the
// sections it needs
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/device"
	"github.com/calvinmclean/sortcell/dns"
	"github.com/calvinmclean/sortcell/estop"
	"github.com/calvinmclean/sortcell/hal/serialrelay"
	"github.com/calvinmclean/sortcell/logging"
	"github.com/calvinmclean/sortcell/node"
	"github.com/calvinmclean/sortcell/orchestrator"
	"github.com/calvinmclean/sortcell/position"
	"github.com/calvinmclean/sortcell/retry"
)

// EnvPrefix starts every environment override
const EnvPrefix = "SORTCELL_"

const defaultListen = ":80"

// Nodes is where each node is reached
type Nodes struct {
	Motors      string       `yaml:"motors"`
	Sensors     string       `yaml:"sensors"`
	Coordinator string       `yaml:"coordinator"`
	Retry       retry.Config `yaml:"retry"`
}

type MotorNode struct {
	Listen               string `yaml:"listen"`
	node.MotorNodeConfig `yaml:",inline"`
}

type SensorNode struct {
	Listen                string `yaml:"listen"`
	node.SensorNodeConfig `yaml:",inline"`
	// SerialRelay drives the relays from a USB relay board instead of GPIO
	SerialRelay *serialrelay.Config `yaml:"serial_relay"`
}

type Coordinator struct {
	Listen              string `yaml:"listen"`
	Autostart           bool   `yaml:"autostart"`
	orchestrator.Config `yaml:",inline"`
}

type Config struct {
	Nodes       Nodes          `yaml:"nodes"`
	MotorNode   MotorNode      `yaml:"motor_node"`
	SensorNode  SensorNode     `yaml:"sensor_node"`
	Coordinator Coordinator    `yaml:"coordinator"`
	Estop       estop.Config   `yaml:"estop"`
	DNS         dns.Config     `yaml:"dns"`
	Log         logging.Config `yaml:"log"`
}

func intPtr(i int) *int {
	return &i
}

// Default is the wiring of the reference cell
func Default() Config {
	const (
		stepperEnable = 21
		servoMinDuty  = 40
		servoMaxDuty  = 115
	)

	stepper := func(step, dir int) device.StepperConfig {
		return device.StepperConfig{
			StepPin:   step,
			DirPin:    dir,
			EnablePin: intPtr(stepperEnable),
			MaxSpeed:  20000,
		}
	}
	servo := func(pin int) device.ServoConfig {
		return device.ServoConfig{Pin: pin, ParkedAngle: 180, MinDuty: servoMinDuty, MaxDuty: servoMaxDuty}
	}
	piezo := func(pin int) device.PiezoConfig {
		return device.PiezoConfig{Pin: pin}
	}
	relay := func(pin int) device.RelayConfig {
		return device.RelayConfig{Pin: pin, ActiveLow: true}
	}

	return Config{
		Nodes: Nodes{
			Motors:      "http://" + sortcell.MotorsHost,
			Sensors:     "http://" + sortcell.SensorsHost,
			Coordinator: "http://" + sortcell.ProcessHost,
			Retry:       retry.Once(),
		},
		MotorNode: MotorNode{
			Listen: defaultListen,
			MotorNodeConfig: node.MotorNodeConfig{
				Steppers: []device.StepperConfig{
					stepper(26, 17),
					stepper(25, 2),
					stepper(27, 0),
					stepper(18, 19),
					stepper(14, 16),
				},
				Servos: []device.ServoConfig{servo(33), servo(32), servo(15)},
				Motors: []device.DCMotorConfig{
					{In1Pin: 5, In2Pin: 4, EnablePin: 22, Speed: 1023},
				},
				MaxTasks: 8,
			},
		},
		SensorNode: SensorNode{
			Listen: defaultListen,
			SensorNodeConfig: node.SensorNodeConfig{
				Colour:   device.ColourSensorConfig{SCLPin: 27, SDAPin: 32},
				MetalPin: 26,
				Piezos:   []device.PiezoConfig{piezo(36), piezo(39), piezo(34)},
				Relays: []device.RelayConfig{
					relay(4), relay(14), relay(22), relay(12), relay(23), relay(19),
				},
				Distance: &device.DistanceSensorConfig{TriggerPin: 33, EchoPin: 25},
			},
		},
		Coordinator: Coordinator{
			Listen: defaultListen,
			Config: orchestrator.DefaultConfig(),
		},
		Estop: estop.Config{
			Pin:  5,
			Edge: estop.EdgeFalling,
		},
		DNS: dns.DefaultConfig(),
		Log: logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, fills anything left empty and applies environment overrides. An
// empty path uses the defaults alone
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("error parsing config file %q: %w", path, err)
		}
	}

	cfg.applyDefaults()
	err := cfg.applyEnv(os.LookupEnv)
	if err != nil {
		return Config{}, err
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills values that must never be empty
func (c *Config) applyDefaults() {
	def := Default()

	for _, l := range []*string{&c.MotorNode.Listen, &c.SensorNode.Listen, &c.Coordinator.Listen} {
		if *l == "" {
			*l = defaultListen
		}
	}
	if c.Nodes.Motors == "" {
		c.Nodes.Motors = def.Nodes.Motors
	}
	if c.Nodes.Sensors == "" {
		c.Nodes.Sensors = def.Nodes.Sensors
	}
	if c.Nodes.Coordinator == "" {
		c.Nodes.Coordinator = def.Nodes.Coordinator
	}
	if c.Coordinator.StepsPerSegment == 0 {
		c.Coordinator.StepsPerSegment = position.DefaultStepsPerSegment
	}
	if c.Coordinator.HistorySize == 0 {
		c.Coordinator.HistorySize = def.Coordinator.HistorySize
	}
	if c.Coordinator.CallTimeout == 0 {
		c.Coordinator.CallTimeout = def.Coordinator.CallTimeout
	}
	if c.Coordinator.StatusPingTimeout == 0 {
		c.Coordinator.StatusPingTimeout = def.Coordinator.StatusPingTimeout
	}
	if c.DNS.Addr == "" {
		c.DNS.Addr = def.DNS.Addr
	}
	if c.DNS.TTL == 0 {
		c.DNS.TTL = def.DNS.TTL
	}
	if len(c.DNS.Records) == 0 {
		c.DNS.Records = def.DNS.Records
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// applyEnv overrides single values from SORTCELL_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"MOTORS_ADDR":        &c.Nodes.Motors,
		"SENSORS_ADDR":       &c.Nodes.Sensors,
		"COORDINATOR_ADDR":   &c.Nodes.Coordinator,
		"MOTOR_NODE_LISTEN":  &c.MotorNode.Listen,
		"SENSOR_NODE_LISTEN": &c.SensorNode.Listen,
		"COORDINATOR_LISTEN": &c.Coordinator.Listen,
		"POSITION_POLICY":    &c.Coordinator.PositionPolicy,
		"DNS_ADDR":           &c.DNS.Addr,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "SERIAL_RELAY_PORT"); ok && v != "" {
		if c.SensorNode.SerialRelay == nil {
			c.SensorNode.SerialRelay = &serialrelay.Config{}
		}
		c.SensorNode.SerialRelay.Port = v
	}

	if v, ok := lookup(EnvPrefix + "GATE_PLACEMENT"); ok && v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			c.Coordinator.GatePlacement = true
		case "0", "false", "no":
			c.Coordinator.GatePlacement = false
		default:
			return fmt.Errorf("invalid %sGATE_PLACEMENT %q", EnvPrefix, v)
		}
	}
	return nil
}

// Validate checks every section
func (c Config) Validate() error {
	var errs []error

	err := c.Coordinator.Config.Validate()
	if err != nil {
		errs = append(errs, fmt.Errorf("coordinator: %w", err))
	}

	switch c.Estop.Edge {
	case "", estop.EdgeFalling, estop.EdgeRising:
	default:
		errs = append(errs, fmt.Errorf("estop: invalid edge %q", c.Estop.Edge))
	}

	_, err = logging.ParseLevel(c.Log.Level)
	if err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	if c.SensorNode.SerialRelay != nil && c.SensorNode.SerialRelay.Port == "" {
		errs = append(errs, errors.New("sensor_node: serial_relay needs a port"))
	}

	return errors.Join(errs...)
}
