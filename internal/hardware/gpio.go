package hardware

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// ErrPinNotFound is returned when the board has no pin with the given name.
var ErrPinNotFound = errors.New("gpio pin not found")

// Pin is an Output backed by a GPIO line.
type Pin struct {
	pin gpio.PinOut
}

// Init loads the periph host drivers. It must run once before OpenPin.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init gpio host: %w", err)
	}

	return nil
}

// OpenPin looks up a pin by name (e.g. "GPIO6") and drives it low.
func OpenPin(name string) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}

	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure %s as output: %w", name, err)
	}

	return &Pin{pin: p}, nil
}

// Set drives the pin high for on and low for off.
func (p *Pin) Set(on bool) error {
	return p.pin.Out(gpio.Level(on))
}
