package config

import (
	"github.com/spf13/cast"
)

// Overlay is the runtime-mutable part of the configuration. The server may
// push a new overlay at any time; the agent swaps the whole value in one
// assignment under its own lock, so readers never observe a half-applied
// update. Version increments on every apply.
type Overlay struct {
	Version         int
	Volume          float64
	WakeSensitivity float64
	LEDPatterns     map[string]PatternColor
	Features        map[string]bool
}

// PatternColor is one entry of the LED pattern color table.
type PatternColor struct {
	R, G, B    uint8
	Brightness uint8
}

// DefaultOverlay returns the overlay in effect before the server pushes one.
func DefaultOverlay() Overlay {
	return Overlay{
		Version:         0,
		Volume:          1.0,
		WakeSensitivity: 0.5,
		LEDPatterns:     map[string]PatternColor{},
		Features:        map[string]bool{},
	}
}

// MergeFrom builds the successor overlay from a loosely-typed CONFIG
// payload. Unknown keys are ignored; recognized keys replace the previous
// value, everything else carries over. The receiver is not modified.
func (o Overlay) MergeFrom(fields map[string]interface{}) Overlay {
	next := o
	next.Version = o.Version + 1

	// maps are copied, never mutated in place
	next.LEDPatterns = make(map[string]PatternColor, len(o.LEDPatterns))
	for k, v := range o.LEDPatterns {
		next.LEDPatterns[k] = v
	}
	next.Features = make(map[string]bool, len(o.Features))
	for k, v := range o.Features {
		next.Features[k] = v
	}

	if v, ok := fields["volume"]; ok {
		next.Volume = clampUnit(cast.ToFloat64(v))
	}
	if v, ok := fields["wake_sensitivity"]; ok {
		next.WakeSensitivity = clampUnit(cast.ToFloat64(v))
	}
	if v, ok := fields["led_patterns"]; ok {
		for name, raw := range cast.ToStringMap(v) {
			if pc, ok := parsePatternColor(raw); ok {
				next.LEDPatterns[name] = pc
			}
		}
	}
	if v, ok := fields["features"]; ok {
		for name, raw := range cast.ToStringMap(v) {
			next.Features[name] = cast.ToBool(raw)
		}
	}
	return next
}

func parsePatternColor(raw interface{}) (PatternColor, bool) {
	m := cast.ToStringMap(raw)
	if m == nil {
		return PatternColor{}, false
	}
	pc := PatternColor{
		R:          uint8(cast.ToUint(m["r"])),
		G:          uint8(cast.ToUint(m["g"])),
		B:          uint8(cast.ToUint(m["b"])),
		Brightness: 31,
	}
	if v, ok := m["brightness"]; ok {
		b := cast.ToUint(v)
		if b > 31 {
			b = 31
		}
		pc.Brightness = uint8(b)
	}
	return pc, true
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
