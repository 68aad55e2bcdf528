package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// malgoBackend drives real audio hardware through miniaudio.
type malgoBackend struct {
	ctx *malgo.AllocatedContext
}

func newMalgoBackend() (*malgoBackend, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	return &malgoBackend{ctx: ctx}, nil
}

func (b *malgoBackend) Close() error {
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

func (b *malgoBackend) findDevice(kind malgo.DeviceType, hint string) *malgo.DeviceID {
	if hint == "" {
		return nil // system default
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil
	}
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(hint)) {
			id := info.ID
			return &id
		}
	}
	return nil
}

func (b *malgoBackend) OpenCapture(cfg StreamConfig) (CaptureStream, error) {
	c := &malgoCapture{
		frameBytes: cfg.FrameBytes(),
	}
	c.cond = sync.NewCond(&c.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.FrameSamples)
	if id := b.findDevice(malgo.Capture, cfg.Device); id != nil {
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			c.mu.Lock()
			c.buf = append(c.buf, pInputSamples...)
			c.mu.Unlock()
			c.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audio: open capture (%d ch): %w", cfg.Channels, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: start capture: %w", err)
	}
	c.device = device
	return c, nil
}

type malgoCapture struct {
	device     *malgo.Device
	frameBytes int

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func (c *malgoCapture) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.buf) < c.frameBytes && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return nil, ErrNoFrame
	}
	out := make([]byte, c.frameBytes)
	copy(out, c.buf[:c.frameBytes])
	c.buf = c.buf[c.frameBytes:]
	return out, nil
}

func (c *malgoCapture) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}

func (b *malgoBackend) OpenPlayback(cfg StreamConfig) (PlaybackStream, error) {
	p := &malgoPlayback{}
	p.cond = sync.NewCond(&p.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	if id := b.findDevice(malgo.Playback, cfg.Device); id != nil {
		deviceConfig.Playback.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSamples, _ []byte, _ uint32) {
			p.mu.Lock()
			n := copy(pOutputSamples, p.buf)
			p.buf = p.buf[n:]
			// zero-fill on underrun instead of replaying stale samples
			for i := n; i < len(pOutputSamples); i++ {
				pOutputSamples[i] = 0
			}
			if len(p.buf) == 0 {
				p.cond.Broadcast()
			}
			p.mu.Unlock()
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audio: open playback (%d ch): %w", cfg.Channels, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: start playback: %w", err)
	}
	p.device = device
	return p, nil
}

type malgoPlayback struct {
	device *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func (p *malgoPlayback) Write(pcm []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("audio: playback stream closed")
	}
	p.buf = append(p.buf, pcm...)
	return nil
}

func (p *malgoPlayback) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) > 0 && !p.closed {
		p.cond.Wait()
	}
	return nil
}

func (p *malgoPlayback) Close() error {
	p.mu.Lock()
	p.closed = true
	p.buf = nil
	p.mu.Unlock()
	p.cond.Broadcast()
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	return nil
}
