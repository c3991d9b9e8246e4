package sim

import (
	"errors"
	"fmt"
	"sync"
)

var ErrNoDevice = errors.New("no device at address")

// RegisterBus emulates I2C devices as flat register files. The first written byte selects the
// register (after Mask is applied), any further written bytes are stored from there, and reads
// return consecutive registers starting at the selected one
type RegisterBus struct {
	mtx     sync.Mutex
	mask    byte
	devices map[uint16]*[256]byte
	// Fail, when set, is returned from every transaction
	Fail error
}

// NewRegisterBus strips command bits from the register byte with mask
func NewRegisterBus(mask byte) *RegisterBus {
	return &RegisterBus{mask: mask, devices: map[uint16]*[256]byte{}}
}

// Attach makes a device respond at addr. Attaching twice is a no-op
func (b *RegisterBus) Attach(addr uint16) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if _, ok := b.devices[addr]; !ok {
		b.devices[addr] = &[256]byte{}
	}
}

// Detach removes the device at addr
func (b *RegisterBus) Detach(addr uint16) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	delete(b.devices, addr)
}

// Poke writes register values directly
func (b *RegisterBus) Poke(addr uint16, reg byte, data ...byte) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	regs, ok := b.devices[addr]
	if !ok {
		regs = &[256]byte{}
		b.devices[addr] = regs
	}
	for i, d := range data {
		regs[(int(reg)+i)%256] = d
	}
}

// Peek reads a register directly
func (b *RegisterBus) Peek(addr uint16, reg byte) byte {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	regs, ok := b.devices[addr]
	if !ok {
		return 0
	}
	return regs[reg]
}

func (b *RegisterBus) Tx(addr uint16, w, r []byte) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.Fail != nil {
		return b.Fail
	}
	regs, ok := b.devices[addr]
	if !ok {
		return fmt.Errorf("%w: 0x%02X", ErrNoDevice, addr)
	}
	if len(w) == 0 {
		return nil
	}

	reg := int(w[0] & b.mask)
	for i, d := range w[1:] {
		regs[(reg+i)%256] = d
	}
	for i := range r {
		r[i] = regs[(reg+i)%256]
	}
	return nil
}

func (b *RegisterBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

func (b *RegisterBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

// TCS34725 register layout used by NewColourBus
const (
	tcsAddress = 0x29
	tcsMask    = 0x1F
	tcsID      = 0x12
	tcsStatus  = 0x13
	tcsCData   = 0x14
)

// NewColourBus returns a bus with a TCS34725 attached reporting the given raw counts
func NewColourBus(ambient, red, green, blue uint16) *RegisterBus {
	b := NewRegisterBus(tcsMask)
	b.Poke(tcsAddress, tcsID, 0x44)
	b.SetColour(ambient, red, green, blue)
	return b
}

// SetColour updates the raw counts of the attached TCS34725 and marks the data valid
func (b *RegisterBus) SetColour(ambient, red, green, blue uint16) {
	b.Poke(tcsAddress, tcsStatus, 0x01)
	b.Poke(tcsAddress, tcsCData,
		byte(ambient), byte(ambient>>8),
		byte(red), byte(red>>8),
		byte(green), byte(green>>8),
		byte(blue), byte(blue>>8),
	)
}
