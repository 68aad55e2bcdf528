package led

import (
	"fmt"
)

// Color is an RGB triple.
type Color struct {
	R, G, B uint8
}

// Backend is the minimal capability surface over concrete LED hardware.
// Brightness is 5-bit (0..31) to match the strip wire format; backends
// with less resolution map it down.
type Backend interface {
	// SetAll lights every LED with one color and brightness.
	SetAll(c Color, brightness uint8) error
	// Off blanks all LEDs.
	Off() error
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind     string // "noop", "spi", "gpio"
	SPIBus   string
	LEDCount int
	GPIOPin  string
}

// NewBackend constructs the configured backend. The noop variant is the
// always-available safe default.
func NewBackend(cfg Config) (Backend, error) {
	switch cfg.Kind {
	case "noop", "":
		return NewNoopBackend(), nil
	case "spi":
		return newSPIBackend(cfg.SPIBus, cfg.LEDCount)
	case "gpio":
		return newGPIOBackend(cfg.GPIOPin)
	default:
		return nil, fmt.Errorf("led: unsupported backend %q", cfg.Kind)
	}
}

// NoopBackend ignores everything.
type NoopBackend struct{}

// NewNoopBackend creates a no-op backend.
func NewNoopBackend() *NoopBackend { return &NoopBackend{} }

func (b *NoopBackend) SetAll(Color, uint8) error { return nil }
func (b *NoopBackend) Off() error                { return nil }
func (b *NoopBackend) Close() error              { return nil }
