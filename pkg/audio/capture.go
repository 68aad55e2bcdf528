package audio

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Capture produces one mono 16-bit PCM frame per hardware period,
// papering over hardware that ignores the mono request. Negotiation
// happens on open and on the first read:
//
//   - if the mono open fails, the device is reopened in stereo and every
//     frame is downmixed;
//   - if the mono open succeeds but the first period arrives at stereo
//     size, the stream permanently switches to downmix mode.
//
// A software gain is applied after downmix. Hardware access is serialized
// behind a mutex so Start/Read/Close may be called from different
// goroutines.
type Capture struct {
	backend Backend
	cfg     StreamConfig
	gain    float64
	logger  *zap.Logger

	mu        sync.Mutex
	stream    CaptureStream
	stereo    bool
	firstRead bool
}

// NewCapture creates an unstarted capture pipeline.
func NewCapture(backend Backend, cfg StreamConfig, gain float64, logger *zap.Logger) *Capture {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gain <= 0 {
		gain = 1.0
	}
	return &Capture{
		backend: backend,
		cfg:     cfg,
		gain:    gain,
		logger:  logger,
	}
}

// Start opens the capture device. Total inability to open in mono or
// stereo is fatal and surfaces to the agent as Error state.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return nil
	}

	monoCfg := c.cfg
	monoCfg.Channels = 1
	stream, err := c.backend.OpenCapture(monoCfg)
	if err != nil {
		c.logger.Warn("mono capture open failed, retrying in stereo", zap.Error(err))
		stereoCfg := c.cfg
		stereoCfg.Channels = 2
		stream, err = c.backend.OpenCapture(stereoCfg)
		if err != nil {
			return fmt.Errorf("audio: capture device unavailable: %w", err)
		}
		c.stereo = true
	}
	c.stream = stream
	c.firstRead = true
	return nil
}

// ReadFrame blocks for one hardware period and returns it as a mono frame
// of the configured size. A transient hardware error returns ErrNoFrame.
func (c *Capture) ReadFrame() ([]byte, error) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return nil, fmt.Errorf("audio: capture not started")
	}

	raw, err := stream.Read()
	if err != nil {
		return nil, ErrNoFrame
	}

	monoBytes := c.cfg.FrameSamples * 2

	c.mu.Lock()
	if c.firstRead {
		c.firstRead = false
		// hardware may silently deliver stereo despite a mono open
		if !c.stereo && len(raw) == monoBytes*2 {
			c.logger.Warn("capture device delivered stereo for a mono open, downmixing from now on",
				zap.Int("frame_bytes", len(raw)))
			c.stereo = true
		}
	}
	stereo := c.stereo
	gain := c.gain
	c.mu.Unlock()

	frame := raw
	if stereo {
		frame = DownmixStereo(raw)
	}
	if len(frame) != monoBytes {
		// partial period, treat like a transient read failure
		return nil, ErrNoFrame
	}
	return ApplyGain(frame, gain), nil
}

// Stereo reports whether the stream runs in stereo-downmix mode.
func (c *Capture) Stereo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stereo
}

// Close releases the capture device. Safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	return err
}
