package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"github.com/calvinmclean/sortcell"
)

// TCS34725 registers
const (
	tcsAddress   = 0x29
	tcsCommand   = 0x80
	tcsAutoInc   = 0x20
	tcsEnable    = 0x00
	tcsATime     = 0x01
	tcsControl   = 0x0F
	tcsID        = 0x12
	tcsCData     = 0x14
	tcsEnablePON = 0x01
	tcsEnableAEN = 0x02

	tcsCycle = 2400 * time.Microsecond
)

var tcsGains = map[int]byte{1: 0x00, 4: 0x01, 16: 0x02, 60: 0x03}

// Colour is the gamma-corrected RGB estimate of the object under the sensor
type Colour struct {
	Red   int `json:"red"`
	Green int `json:"green"`
	Blue  int `json:"blue"`
}

// ColourSensor reads a TCS34725
type ColourSensor struct {
	mtx         sync.Mutex
	bus         drivers.I2C
	integration time.Duration
	gain        byte
	ready       bool
}

func NewColourSensor(bus drivers.I2C, cfg ColourSensorConfig) (*ColourSensor, error) {
	if cfg.IntegrationTime == 0 {
		cfg.IntegrationTime = 24 * time.Millisecond
	}
	cycles := int(cfg.IntegrationTime / tcsCycle)
	if cycles < 1 || cycles > 256 {
		return nil, fmt.Errorf("%w: integration time %s", sortcell.ErrOutOfRange, cfg.IntegrationTime)
	}
	cfg.IntegrationTime = time.Duration(cycles) * tcsCycle

	if cfg.Gain == 0 {
		cfg.Gain = 4
	}
	gain, ok := tcsGains[cfg.Gain]
	if !ok {
		return nil, fmt.Errorf("%w: gain %d", sortcell.ErrOutOfRange, cfg.Gain)
	}

	return &ColourSensor{bus: bus, integration: cfg.IntegrationTime, gain: gain}, nil
}

func (c *ColourSensor) write(reg, value byte) error {
	return c.bus.Tx(tcsAddress, []byte{tcsCommand | reg, value}, nil)
}

// Connected checks the ID register
func (c *ColourSensor) Connected() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	id := []byte{0}
	err := c.bus.Tx(tcsAddress, []byte{tcsCommand | tcsID}, id)
	if err != nil {
		return false
	}
	return id[0] == 0x44 || id[0] == 0x4D
}

func (c *ColourSensor) configure() error {
	if c.ready {
		return nil
	}

	atime := byte(256 - int(c.integration/tcsCycle))
	err := c.write(tcsATime, atime)
	if err != nil {
		return err
	}
	err = c.write(tcsControl, c.gain)
	if err != nil {
		return err
	}
	err = c.write(tcsEnable, tcsEnablePON)
	if err != nil {
		return err
	}
	time.Sleep(3 * time.Millisecond)
	err = c.write(tcsEnable, tcsEnablePON|tcsEnableAEN)
	if err != nil {
		return err
	}

	time.Sleep(c.integration)
	c.ready = true
	return nil
}

// Read returns the current colour. Any bus failure is reported as sortcell.ErrNotConnected
func (c *ColourSensor) Read() (Colour, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	err := c.configure()
	if err != nil {
		return Colour{}, fmt.Errorf("%w: %w", sortcell.ErrNotConnected, err)
	}

	data := make([]byte, 8)
	err = c.bus.Tx(tcsAddress, []byte{tcsCommand | tcsAutoInc | tcsCData}, data)
	if err != nil {
		c.ready = false
		return Colour{}, fmt.Errorf("%w: %w", sortcell.ErrNotConnected, err)
	}

	ambient := binary.LittleEndian.Uint16(data[0:])
	red := binary.LittleEndian.Uint16(data[2:])
	green := binary.LittleEndian.Uint16(data[4:])
	blue := binary.LittleEndian.Uint16(data[6:])
	return ScaleColour(ambient, red, green, blue), nil
}

// ScaleColour normalizes raw counts by the clear channel and applies a 2.5 gamma. A zero clear
// channel means no light and gives black
func ScaleColour(ambient, red, green, blue uint16) Colour {
	if ambient == 0 {
		return Colour{}
	}
	scale := func(v uint16) int {
		n := int(float64(v) / float64(ambient) * 256)
		out := int(math.Pow(float64(n)/255, 2.5) * 255)
		return min(out, 255)
	}
	return Colour{Red: scale(red), Green: scale(green), Blue: scale(blue)}
}
