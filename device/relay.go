package device

import (
	"sync/atomic"

	"github.com/calvinmclean/sortcell/hal"
)

// Relay switches a load. Active-low relays are energized by driving the pin low
type Relay struct {
	pin       hal.OutputPin
	activeLow bool
	enabled   atomic.Bool
}

// NewRelay wraps pin and switches it off
func NewRelay(pin hal.OutputPin, activeLow bool) *Relay {
	r := &Relay{pin: pin, activeLow: activeLow}
	r.Set(false)
	return r
}

func (r *Relay) Set(enable bool) {
	r.pin.Set(enable != r.activeLow)
	r.enabled.Store(enable)
}

func (r *Relay) Enabled() bool {
	return r.enabled.Load()
}
