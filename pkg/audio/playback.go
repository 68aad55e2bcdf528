package audio

import (
	"fmt"
	"io"
	"os"
	"sync"

	wav "github.com/youpy/go-wav"
	"go.uber.org/zap"
)

// Player routes PCM and WAV content to the playback device. Per the
// hardware contract, a stereo open is attempted first (some devices
// refuse mono playback); on failure the requested channel count is tried.
// When stereo is used for mono content each sample is duplicated into
// both channels. Volume is applied before upmix.
//
// All hardware access is serialized behind a mutex, which also makes
// overlapping playback requests (filler vs TTS) play back to back rather
// than race the device.
type Player struct {
	backend Backend
	device  string
	logger  *zap.Logger

	mu sync.Mutex
}

// NewPlayer creates a player on the given backend.
func NewPlayer(backend Backend, device string, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Player{backend: backend, device: device, logger: logger}
}

// PlayPCM plays 16-bit little-endian PCM at the given rate and blocks
// until playback finished. channels is the channel count of the content.
func (p *Player) PlayPCM(pcm []byte, sampleRate, channels int, volume float64) error {
	if len(pcm) == 0 {
		return nil // empty buffer playback is a no-op, not an error
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	// zero is a legal setting and must come out silent; only a negative
	// value means the caller left the volume unset
	if volume < 0 {
		volume = 1.0
	}

	cfg := StreamConfig{
		Device:       p.device,
		SampleRate:   sampleRate,
		Channels:     2,
		FrameSamples: len(pcm) / 2,
	}
	upmix := channels == 1

	stream, err := p.backend.OpenPlayback(cfg)
	if err != nil {
		p.logger.Warn("stereo playback open failed, retrying with content channels",
			zap.Int("channels", channels), zap.Error(err))
		cfg.Channels = channels
		upmix = false
		stream, err = p.backend.OpenPlayback(cfg)
		if err != nil {
			return fmt.Errorf("audio: playback device unavailable: %w", err)
		}
	}
	defer stream.Close()

	out := ApplyGain(append([]byte(nil), pcm...), volume)
	if upmix {
		out = UpmixMono(out)
	}
	if err := stream.Write(out); err != nil {
		return fmt.Errorf("audio: playback write: %w", err)
	}
	return stream.Drain()
}

// PlayWAV reads the file header for channel count and sample rate and
// plays the data chunk through the same stereo-fallback path.
func (p *Player) PlayWAV(path string, volume float64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audio: open wav %s: %w", path, err)
	}
	defer f.Close()

	reader := wav.NewReader(f)
	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("audio: read wav header %s: %w", path, err)
	}
	if format.BitsPerSample != 16 {
		return fmt.Errorf("audio: wav %s: unsupported bit depth %d", path, format.BitsPerSample)
	}

	pcm, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("audio: read wav data %s: %w", path, err)
	}
	return p.PlayPCM(pcm, int(format.SampleRate), int(format.NumChannels), volume)
}
