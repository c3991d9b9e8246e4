// Package hal is the thin boundary between device logic and pins. Implementations live in
// sub-packages: sim for host builds and tests, rp2040 for TinyGo targets, serialrelay for USB relay
// boards. The interfaces are shaped so TinyGo's machine.Pin and machine.ADC satisfy them directly
package hal

import (
	"tinygo.org/x/drivers"
)

// OutputPin is a digital output
type OutputPin interface {
	Set(bool)
}

// InputPin is a digital input
type InputPin interface {
	Get() bool
}

// ADC is a 16-bit analog input
type ADC interface {
	Get() uint16
}

// DutyCycle is a PWM output. Duty is 0..MaxDuty
type DutyCycle interface {
	SetDuty(duty uint16)
}

// MaxDuty is the full-scale duty value accepted by DutyCycle
const MaxDuty = 1023

// ServoDriver positions a hobby servo. tinygo.org/x/drivers/servo.Servo satisfies it
type ServoDriver interface {
	SetAngle(angle int) error
}

// Pull configures the bias on an input pin
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Board hands out configured peripherals by pin number
type Board interface {
	Output(pin int) (OutputPin, error)
	Input(pin int, pull Pull) (InputPin, error)
	ADC(pin int) (ADC, error)
	PWM(pin int, frequency uint64) (DutyCycle, error)
	Servo(pin int) (ServoDriver, error)
	I2C(scl, sda int) (drivers.I2C, error)
}
