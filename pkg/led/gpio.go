package led

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// gpioBackend is a single-pin indicator: any non-black color with
// non-zero brightness turns the pin on.
type gpioBackend struct {
	pin gpio.PinIO
}

func newGPIOBackend(name string) (*gpioBackend, error) {
	var initErr error
	hostInitOnce.Do(func() {
		_, initErr = host.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("led: host init: %w", initErr)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("led: gpio pin %q not found", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("led: gpio pin %s: %w", name, err)
	}
	return &gpioBackend{pin: pin}, nil
}

func (b *gpioBackend) SetAll(c Color, brightness uint8) error {
	level := gpio.Low
	if brightness > 0 && (c.R > 0 || c.G > 0 || c.B > 0) {
		level = gpio.High
	}
	return b.pin.Out(level)
}

func (b *gpioBackend) Off() error {
	return b.pin.Out(gpio.Low)
}

func (b *gpioBackend) Close() error {
	return b.pin.Out(gpio.Low)
}
