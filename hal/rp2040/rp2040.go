//go:build tinygo

// Package rp2040 is the hal.Board for RP2040 boards running TinyGo
package rp2040

import (
	"errors"
	"machine"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/servo"

	"github.com/calvinmclean/sortcell/hal"
)

// pwmGroup matches the exported methods of the RP2040 PWM slices (and servo.PWM)
type pwmGroup interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (channel uint8, err error)
	Top() uint32
	Set(channel uint8, value uint32)
}

var pwmGroups = [...]pwmGroup{
	machine.PWM0, machine.PWM1, machine.PWM2, machine.PWM3,
	machine.PWM4, machine.PWM5, machine.PWM6, machine.PWM7,
}

// Board configures RP2040 pins on demand
type Board struct {
	adcReady bool
	i2cReady bool
}

var _ hal.Board = &Board{}

func New() *Board {
	return &Board{}
}

func (b *Board) Output(pin int) (hal.OutputPin, error) {
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return p, nil
}

func (b *Board) Input(pin int, pull hal.Pull) (hal.InputPin, error) {
	mode := machine.PinInput
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	}

	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: mode})
	return p, nil
}

func (b *Board) ADC(pin int) (hal.ADC, error) {
	if !b.adcReady {
		machine.InitADC()
		b.adcReady = true
	}

	adc := machine.ADC{Pin: machine.Pin(pin)}
	adc.Configure(machine.ADCConfig{})
	return adc, nil
}

func (b *Board) group(pin int) (pwmGroup, error) {
	slice, err := machine.PWMPeripheral(machine.Pin(pin))
	if err != nil {
		return nil, err
	}
	if int(slice) >= len(pwmGroups) {
		return nil, errors.New("no pwm slice for pin")
	}
	return pwmGroups[slice], nil
}

type dutyCycle struct {
	group   pwmGroup
	channel uint8
}

func (d dutyCycle) SetDuty(duty uint16) {
	if duty > hal.MaxDuty {
		duty = hal.MaxDuty
	}
	d.group.Set(d.channel, d.group.Top()*uint32(duty)/hal.MaxDuty)
}

func (b *Board) PWM(pin int, frequency uint64) (hal.DutyCycle, error) {
	group, err := b.group(pin)
	if err != nil {
		return nil, err
	}

	var period uint64
	if frequency > 0 {
		period = 1e9 / frequency
	}
	err = group.Configure(machine.PWMConfig{Period: period})
	if err != nil {
		return nil, err
	}

	channel, err := group.Channel(machine.Pin(pin))
	if err != nil {
		return nil, err
	}
	return dutyCycle{group, channel}, nil
}

func (b *Board) Servo(pin int) (hal.ServoDriver, error) {
	group, err := b.group(pin)
	if err != nil {
		return nil, err
	}

	s, err := servo.New(group, machine.Pin(pin))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *Board) I2C(scl, sda int) (drivers.I2C, error) {
	if !b.i2cReady {
		err := machine.I2C0.Configure(machine.I2CConfig{
			SCL:       machine.Pin(scl),
			SDA:       machine.Pin(sda),
			Frequency: 400 * machine.KHz,
		})
		if err != nil {
			return nil, err
		}
		b.i2cReady = true
	}
	return machine.I2C0, nil
}
