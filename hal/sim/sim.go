// Package sim is an in-memory hal.Board used for host builds and tests. Outputs remember their level
// and count rising edges; inputs and ADCs are driven by the caller
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/calvinmclean/sortcell/hal"
)

var ErrPinInUse = errors.New("pin already in use")

// Pin is both an input and an output
type Pin struct {
	mtx   sync.Mutex
	level bool
	rises int
	falls int
}

var (
	_ hal.OutputPin = &Pin{}
	_ hal.InputPin  = &Pin{}
)

func (p *Pin) Set(v bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if v && !p.level {
		p.rises++
	}
	if !v && p.level {
		p.falls++
	}
	p.level = v
}

func (p *Pin) Get() bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.level
}

// Rises returns the number of low-to-high transitions seen so far
func (p *Pin) Rises() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.rises
}

// Falls returns the number of high-to-low transitions seen so far
func (p *Pin) Falls() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.falls
}

// ADC returns whatever was last stored
type ADC struct {
	mtx   sync.Mutex
	value uint16
}

func (a *ADC) Get() uint16 {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return a.value
}

func (a *ADC) Store(v uint16) {
	a.mtx.Lock()
	a.value = v
	a.mtx.Unlock()
}

// PWM records the last duty
type PWM struct {
	mtx  sync.Mutex
	duty uint16
}

func (p *PWM) SetDuty(duty uint16) {
	p.mtx.Lock()
	p.duty = duty
	p.mtx.Unlock()
}

func (p *PWM) Duty() uint16 {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.duty
}

// Servo records the last angle
type Servo struct {
	mtx   sync.Mutex
	angle int
	set   bool
}

func (s *Servo) SetAngle(angle int) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.angle = angle
	s.set = true
	return nil
}

// Angle returns the last angle and whether one was ever set
func (s *Servo) Angle() (int, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.angle, s.set
}

// Board hands out sim peripherals and keeps them so tests can reach in and drive or inspect them
type Board struct {
	mtx    sync.Mutex
	pins   map[int]*Pin
	adcs   map[int]*ADC
	pwms   map[int]*PWM
	servos map[int]*Servo
	buses  map[[2]int]*RegisterBus
	inUse  map[int]string
	strict bool
	logger *slog.Logger
	newI2C func() *RegisterBus
}

var _ hal.Board = &Board{}

// Option configures a Board
type Option func(*Board)

// WithLogger logs every peripheral that gets configured
func WithLogger(l *slog.Logger) Option {
	return func(b *Board) { b.logger = l }
}

// WithI2C sets the factory for new I2C buses. The default is an empty RegisterBus
func WithI2C(f func() *RegisterBus) Option {
	return func(b *Board) { b.newI2C = f }
}

// Strict makes the Board refuse to hand out the same pin twice for different purposes
func Strict() Option {
	return func(b *Board) { b.strict = true }
}

func NewBoard(opts ...Option) *Board {
	b := &Board{
		pins:   map[int]*Pin{},
		adcs:   map[int]*ADC{},
		pwms:   map[int]*PWM{},
		servos: map[int]*Servo{},
		buses:  map[[2]int]*RegisterBus{},
		inUse:  map[int]string{},
		newI2C: func() *RegisterBus { return NewRegisterBus(0xFF) },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Board) claim(pin int, use string) error {
	if !b.strict {
		return nil
	}
	if prev, ok := b.inUse[pin]; ok && prev != use {
		return fmt.Errorf("%w: pin %d is %s", ErrPinInUse, pin, prev)
	}
	b.inUse[pin] = use
	return nil
}

func (b *Board) debug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

// Pin returns the sim pin, creating it if needed
func (b *Board) Pin(pin int) *Pin {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.pin(pin)
}

func (b *Board) pin(pin int) *Pin {
	p, ok := b.pins[pin]
	if !ok {
		p = &Pin{}
		b.pins[pin] = p
	}
	return p
}

func (b *Board) Output(pin int) (hal.OutputPin, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if err := b.claim(pin, "digital"); err != nil {
		return nil, err
	}
	b.debug("configured output", "pin", pin)
	return b.pin(pin), nil
}

func (b *Board) Input(pin int, pull hal.Pull) (hal.InputPin, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if err := b.claim(pin, "digital"); err != nil {
		return nil, err
	}
	p := b.pin(pin)
	if pull == hal.PullUp {
		p.level = true
	}
	b.debug("configured input", "pin", pin, "pull", pull)
	return p, nil
}

// SimADC returns the sim ADC on pin, creating it if needed
func (b *Board) SimADC(pin int) *ADC {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.adc(pin)
}

func (b *Board) adc(pin int) *ADC {
	a, ok := b.adcs[pin]
	if !ok {
		a = &ADC{}
		b.adcs[pin] = a
	}
	return a
}

func (b *Board) ADC(pin int) (hal.ADC, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if err := b.claim(pin, "adc"); err != nil {
		return nil, err
	}
	b.debug("configured adc", "pin", pin)
	return b.adc(pin), nil
}

// SimPWM returns the sim PWM on pin, creating it if needed
func (b *Board) SimPWM(pin int) *PWM {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.pwm(pin)
}

func (b *Board) pwm(pin int) *PWM {
	p, ok := b.pwms[pin]
	if !ok {
		p = &PWM{}
		b.pwms[pin] = p
	}
	return p
}

func (b *Board) PWM(pin int, frequency uint64) (hal.DutyCycle, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if err := b.claim(pin, "pwm"); err != nil {
		return nil, err
	}
	b.debug("configured pwm", "pin", pin, "frequency", frequency)
	return b.pwm(pin), nil
}

// SimServo returns the sim servo on pin, creating it if needed
func (b *Board) SimServo(pin int) *Servo {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.servo(pin)
}

func (b *Board) servo(pin int) *Servo {
	s, ok := b.servos[pin]
	if !ok {
		s = &Servo{}
		b.servos[pin] = s
	}
	return s
}

func (b *Board) Servo(pin int) (hal.ServoDriver, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if err := b.claim(pin, "pwm"); err != nil {
		return nil, err
	}
	b.debug("configured servo", "pin", pin)
	return b.servo(pin), nil
}

// Bus returns the sim I2C bus on the given pins, creating it if needed
func (b *Board) Bus(scl, sda int) *RegisterBus {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.bus(scl, sda)
}

func (b *Board) bus(scl, sda int) *RegisterBus {
	key := [2]int{scl, sda}
	bus, ok := b.buses[key]
	if !ok {
		bus = b.newI2C()
		b.buses[key] = bus
	}
	return bus
}

func (b *Board) I2C(scl, sda int) (drivers.I2C, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if err := b.claim(scl, "i2c"); err != nil {
		return nil, err
	}
	if err := b.claim(sda, "i2c"); err != nil {
		return nil, err
	}
	b.debug("configured i2c", "scl", scl, "sda", sda)
	return b.bus(scl, sda), nil
}
