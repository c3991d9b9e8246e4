package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/calvinmclean/sortcell"
	"github.com/calvinmclean/sortcell/device"
	"github.com/calvinmclean/sortcell/hal"
	"github.com/calvinmclean/sortcell/metrics"
)

// SensorNodeConfig describes the sensors and relays. Relay pins are looked up on the relay outputs
// passed to NewSensorNode, which may be the board itself or a serial relay board
type SensorNodeConfig struct {
	Colour         device.ColourSensorConfig    `yaml:"colour"`
	MetalPin       int                          `yaml:"metal_pin"`
	MetalActiveLow bool                         `yaml:"metal_active_low"`
	Piezos         []device.PiezoConfig         `yaml:"piezos"`
	Relays         []device.RelayConfig         `yaml:"relays"`
	Distance       *device.DistanceSensorConfig `yaml:"distance"`
}

// Outputs hands out digital outputs by pin or channel number
type Outputs interface {
	Output(pin int) (hal.OutputPin, error)
}

// SensorNode owns the classification sensors, piezos and relays
type SensorNode struct {
	colour   *device.ColourSensor
	metal    *device.MetalSensor
	piezos   []*device.Piezo
	relays   []*device.Relay
	distance *device.DistanceSensor
	latched  atomic.Bool
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewSensorNode configures every device and calibrates the piezos
func NewSensorNode(board hal.Board, relayOutputs Outputs, cfg SensorNodeConfig, logger *slog.Logger, m *metrics.Metrics) (*SensorNode, error) {
	if relayOutputs == nil {
		relayOutputs = board
	}
	n := &SensorNode{logger: logger, metrics: m}

	bus, err := board.I2C(cfg.Colour.SCLPin, cfg.Colour.SDAPin)
	if err != nil {
		return nil, fmt.Errorf("error configuring i2c: %w", err)
	}
	n.colour, err = device.NewColourSensor(bus, cfg.Colour)
	if err != nil {
		return nil, fmt.Errorf("error creating colour sensor: %w", err)
	}
	if !n.colour.Connected() {
		logger.Warn("colour sensor not responding")
	}

	metalPin, err := board.Input(cfg.MetalPin, hal.PullNone)
	if err != nil {
		return nil, fmt.Errorf("error configuring metal sensor: %w", err)
	}
	n.metal = device.NewMetalSensor(metalPin, cfg.MetalActiveLow)

	for i, c := range cfg.Piezos {
		adc, err := board.ADC(c.Pin)
		if err != nil {
			return nil, fmt.Errorf("error configuring piezo %d: %w", i, err)
		}
		p := device.NewPiezo(adc, c)
		logger.Debug("calibrated piezo", "id", i, "baseline", p.Baseline())
		n.piezos = append(n.piezos, p)
	}

	for i, c := range cfg.Relays {
		pin, err := relayOutputs.Output(c.Pin)
		if err != nil {
			return nil, fmt.Errorf("error configuring relay %d: %w", i, err)
		}
		n.relays = append(n.relays, device.NewRelay(pin, c.ActiveLow))
	}

	if cfg.Distance != nil {
		n.distance, err = device.NewDistanceSensor(board, *cfg.Distance)
		if err != nil {
			return nil, fmt.Errorf("error creating distance sensor: %w", err)
		}
	}

	logger.Info("sensor node ready", "piezos", len(n.piezos), "relays", len(n.relays), "distance", n.distance != nil)
	return n, nil
}

func (n *SensorNode) Colour() (device.Colour, error) {
	return n.colour.Read()
}

func (n *SensorNode) Metal() bool {
	return n.metal.Read()
}

// Piezo reports a touch. With a positive timeout it polls until a touch or the (capped) timeout,
// otherwise it takes a single reading
func (n *SensorNode) Piezo(ctx context.Context, id int, timeout time.Duration) (bool, error) {
	p, err := index(n.piezos, id, "piezo")
	if err != nil {
		return false, err
	}
	if timeout <= 0 {
		return p.Touched(), nil
	}
	return p.WaitTouch(ctx, timeout), nil
}

// Calibrate re-reads every piezo's resting value
func (n *SensorNode) Calibrate() {
	for _, p := range n.piezos {
		p.Calibrate()
	}
}

// Relay switches a relay. Enabling is refused while the node is stopped
func (n *SensorNode) Relay(id int, enable bool) error {
	r, err := index(n.relays, id, "relay")
	if err != nil {
		return err
	}
	if enable && n.latched.Load() {
		return sortcell.ErrStopRequested
	}
	r.Set(enable)
	return nil
}

// RelayStates returns the enabled state of every relay in index order
func (n *SensorNode) RelayStates() []bool {
	states := make([]bool, len(n.relays))
	for i, r := range n.relays {
		states[i] = r.Enabled()
	}
	return states
}

func (n *SensorNode) Distance() (float64, error) {
	if n.distance == nil {
		return 0, sortcell.ErrNotConnected
	}
	return n.distance.Centimetres()
}

// Stop switches every relay off and latches until Release
func (n *SensorNode) Stop() {
	n.latched.Store(true)
	for _, r := range n.relays {
		r.Set(false)
	}
	n.logger.Info("relays off and latched")
}

// Release clears the stop latch
func (n *SensorNode) Release() {
	if n.latched.Swap(false) {
		n.logger.Info("stop latch released")
	}
}

func (n *SensorNode) Latched() bool {
	return n.latched.Load()
}

// Follow latches the node each time flag becomes set. It returns when ctx is done. Clearing the flag
// does not release the node
func (n *SensorNode) Follow(ctx context.Context, flag *sortcell.StopFlag) {
	for {
		changed := flag.Changed()
		if flag.Stopped() && !n.Latched() {
			n.Stop()
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}
