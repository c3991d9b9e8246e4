package device

import "github.com/calvinmclean/sortcell/hal"

// MetalSensor is an inductive proximity switch. ActiveLow sensors pull the line low on detection
type MetalSensor struct {
	pin       hal.InputPin
	activeLow bool
}

func NewMetalSensor(pin hal.InputPin, activeLow bool) *MetalSensor {
	return &MetalSensor{pin, activeLow}
}

func (m *MetalSensor) Read() bool {
	return m.pin.Get() != m.activeLow
}
