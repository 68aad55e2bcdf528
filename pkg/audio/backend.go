package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoFrame is returned by CaptureStream.Read when the hardware failed to
// deliver a period. It is never fatal; the capture loop skips the cycle
// and keeps going.
var ErrNoFrame = errors.New("audio: no frame available")

// StreamConfig describes one direction of an audio stream as requested
// from the backend. The backend may not honor Channels; callers must
// verify delivered frame sizes.
type StreamConfig struct {
	Device       string
	SampleRate   int
	Channels     int
	FrameSamples int // per channel, per period
}

// FrameBytes returns the expected byte size of one period.
func (c StreamConfig) FrameBytes() int {
	return c.FrameSamples * c.Channels * 2
}

// CaptureStream delivers one hardware period per Read call.
type CaptureStream interface {
	// Read blocks until a period is available and returns its raw PCM
	// bytes in the hardware's delivered channel layout.
	Read() ([]byte, error)
	Close() error
}

// PlaybackStream accepts PCM bytes for playback.
type PlaybackStream interface {
	Write(pcm []byte) error
	// Drain blocks until all written audio has been played out.
	Drain() error
	Close() error
}

// Backend abstracts the audio hardware so the agent can run against real
// devices or a null implementation selected by configuration.
type Backend interface {
	OpenCapture(cfg StreamConfig) (CaptureStream, error)
	OpenPlayback(cfg StreamConfig) (PlaybackStream, error)
	Close() error
}

// NewBackend constructs the backend named by kind.
func NewBackend(kind string) (Backend, error) {
	switch kind {
	case "malgo", "":
		return newMalgoBackend()
	case "null", "noop":
		return NewNullBackend(), nil
	default:
		return nil, fmt.Errorf("audio: unsupported backend %q", kind)
	}
}

// NullBackend is the always-available safe default: capture delivers
// silent frames at the configured period, playback discards.
type NullBackend struct{}

// NewNullBackend creates a null backend.
func NewNullBackend() *NullBackend { return &NullBackend{} }

func (b *NullBackend) OpenCapture(cfg StreamConfig) (CaptureStream, error) {
	period := time.Duration(cfg.FrameSamples) * time.Second / time.Duration(cfg.SampleRate)
	return &nullCapture{frame: make([]byte, cfg.FrameBytes()), period: period}, nil
}

func (b *NullBackend) OpenPlayback(cfg StreamConfig) (PlaybackStream, error) {
	return &nullPlayback{}, nil
}

func (b *NullBackend) Close() error { return nil }

type nullCapture struct {
	frame  []byte
	period time.Duration
}

func (c *nullCapture) Read() ([]byte, error) {
	// pace the loop like real hardware would
	time.Sleep(c.period)
	out := make([]byte, len(c.frame))
	return out, nil
}

func (c *nullCapture) Close() error { return nil }

type nullPlayback struct{}

func (p *nullPlayback) Write(pcm []byte) error { return nil }
func (p *nullPlayback) Drain() error           { return nil }
func (p *nullPlayback) Close() error           { return nil }
