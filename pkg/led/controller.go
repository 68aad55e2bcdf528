package led

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pattern is a named LED state: a color and a 5-bit brightness. The
// "thinking" pattern additionally pulses, which is a property of the
// controller, not the table.
type Pattern struct {
	Color      Color
	Brightness uint8
}

func defaultPatterns() map[string]Pattern {
	return map[string]Pattern{
		"idle":      {Color{0, 0, 16}, 4},
		"listening": {Color{0, 128, 255}, 20},
		"thinking":  {Color{255, 128, 0}, 20},
		"speaking":  {Color{0, 255, 64}, 20},
		"muted":     {Color{128, 0, 0}, 8},
		"error":     {Color{255, 0, 0}, 24},
		"identify":  {Color{255, 255, 255}, 31},
	}
}

// Controller maps named patterns onto a backend. The "thinking" pattern
// runs as its own goroutine updating brightness sinusoidally; stopping it
// is synchronous so no two writers ever race on the hardware bus.
type Controller struct {
	backend Backend
	logger  *zap.Logger

	mu       sync.Mutex
	patterns map[string]Pattern
	current  string

	pulseStop chan struct{}
	pulseDone chan struct{}
}

// NewController creates a controller with the built-in pattern table.
func NewController(backend Backend, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		backend:  backend,
		logger:   logger,
		patterns: defaultPatterns(),
	}
}

// SetPattern applies a named pattern. "thinking" starts the pulse
// animation; every other pattern is static. Unknown names are logged and
// ignored.
func (c *Controller) SetPattern(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.patterns[name]
	if !ok {
		c.logger.Warn("unknown led pattern", zap.String("pattern", name))
		return
	}

	c.stopPulseLocked()
	c.current = name

	if name == "thinking" {
		c.startPulseLocked(p)
		return
	}
	if err := c.backend.SetAll(p.Color, p.Brightness); err != nil {
		c.logger.Debug("led write failed", zap.Error(err))
	}
}

// SetColor applies a raw color at full pattern brightness, stopping any
// running animation first.
func (c *Controller) SetColor(col Color, brightness uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPulseLocked()
	c.current = ""
	if err := c.backend.SetAll(col, brightness); err != nil {
		c.logger.Debug("led write failed", zap.Error(err))
	}
}

// Off stops any animation and blanks the LEDs.
func (c *Controller) Off() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPulseLocked()
	c.current = ""
	if err := c.backend.Off(); err != nil {
		c.logger.Debug("led off failed", zap.Error(err))
	}
}

// Current returns the active pattern name, empty when none.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// UpdatePatterns absorbs a server-pushed color table without restart.
// Entries replace same-named patterns; the active pattern is re-applied
// so the change is visible immediately.
func (c *Controller) UpdatePatterns(patterns map[string]Pattern) {
	c.mu.Lock()
	for name, p := range patterns {
		c.patterns[name] = p
	}
	current := c.current
	c.mu.Unlock()

	if current != "" {
		c.SetPattern(current)
	}
}

// Close stops the animation and releases the backend.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.stopPulseLocked()
	c.mu.Unlock()
	_ = c.backend.Off()
	return c.backend.Close()
}

// startPulseLocked launches the sinusoidal brightness pulse. Caller holds
// c.mu and has already stopped any previous animation.
func (c *Controller) startPulseLocked(p Pattern) {
	stop := make(chan struct{})
	done := make(chan struct{})
	c.pulseStop = stop
	c.pulseDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()

		start := time.Now()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				// brightness swings between 20% and 100% of the pattern level
				phase := now.Sub(start).Seconds() * 2 * math.Pi / 2.0 // 2s period
				level := 0.6 + 0.4*math.Sin(phase)
				b := uint8(math.Round(float64(p.Brightness) * level))
				if err := c.backend.SetAll(p.Color, b); err != nil {
					c.logger.Debug("led pulse write failed", zap.Error(err))
				}
			}
		}
	}()
}

// stopPulseLocked synchronously stops a running pulse so the next
// hardware write cannot interleave with an animation frame.
func (c *Controller) stopPulseLocked() {
	if c.pulseStop == nil {
		return
	}
	close(c.pulseStop)
	<-c.pulseDone
	c.pulseStop = nil
	c.pulseDone = nil
}
