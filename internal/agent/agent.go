package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/code-100-precent/LingEdge/pkg/audio"
	"github.com/code-100-precent/LingEdge/pkg/config"
	"github.com/code-100-precent/LingEdge/pkg/fillers"
	"github.com/code-100-precent/LingEdge/pkg/led"
	"github.com/code-100-precent/LingEdge/pkg/protocol"
	"github.com/code-100-precent/LingEdge/pkg/telemetry"
	"github.com/code-100-precent/LingEdge/pkg/vad"
	"go.uber.org/zap"
)

// Conn is the slice of the protocol client the agent drives.
type Conn interface {
	Connect(ctx context.Context) error
	Listen(ctx context.Context) error
	Close() error
	Connected() bool
	SessionID() string
	ServerURL() string
	SetServerURL(url string)
	On(msgType string, h protocol.Handler)
	SendWake(confidence float64) error
	SendAudioStart(format string) error
	SendAudioChunk(pcm []byte) error
	SendAudioEnd(reason string) error
	SendStatus(status string) error
	SendHeartbeat(uptime int64, cpuTemp float64, wifiRSSI int) error
}

// CaptureSource produces mono PCM frames.
type CaptureSource interface {
	Start() error
	ReadFrame() ([]byte, error)
	Close() error
}

// Playback plays PCM buffers and WAV files.
type Playback interface {
	PlayPCM(pcm []byte, sampleRate, channels int, volume float64) error
	PlayWAV(path string, volume float64) error
}

// LEDs is the indicator surface.
type LEDs interface {
	SetPattern(name string)
	UpdatePatterns(patterns map[string]led.Pattern)
	Off()
	Close() error
}

// Wake is the optional wake word detector.
type Wake interface {
	Available() bool
	Process(pcm []byte) float64
	Reset()
}

// FillerStore is the local filler clip cache.
type FillerStore interface {
	GetRandom() (path string, ok bool)
	Sync(entries []fillers.Entry) error
}

// Telemetry supplies heartbeat stats.
type Telemetry interface {
	Snapshot() telemetry.Stats
}

// DiscoveryService locates the server on the local network.
type DiscoveryService interface {
	Start(found func(addr string)) error
	Stop()
}

// Options carries the agent's collaborators. Any nil optional collaborator
// (Wake, Fillers, Discovery, Telemetry) degrades the matching feature.
type Options struct {
	Client    Conn
	Capture   CaptureSource
	Player    Playback
	LEDs      LEDs
	VAD       *vad.Detector
	Wake      Wake
	Fillers   FillerStore
	Telemetry Telemetry
	Discovery DiscoveryService
	Logger    *zap.Logger
	// Reboot is invoked for the remote reboot command. Defaults to a
	// warning log in case the platform hook was not wired.
	Reboot func() error
}

// Agent owns the state machine and wires frames from capture through
// VAD/wake detection into the protocol client, and inbound protocol
// events back into playback and the LED indicator. All state transitions
// run through its single mutex-guarded control path.
type Agent struct {
	cfg     *config.Config
	client  Conn
	capture CaptureSource
	player  Playback
	leds    LEDs
	vad     *vad.Detector
	wake    Wake
	fillers FillerStore
	telem   Telemetry
	disco   DiscoveryService
	backoff *protocol.Backoff
	errs    *ErrHandler
	logger  *zap.Logger
	reboot  func() error

	mu      sync.Mutex
	state   State
	gen     uint64 // bumped on every transition, guards stale completions
	overlay config.Overlay
	ttsBuf  []byte
	ttsRate int

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New assembles an agent. It does not touch hardware; Run does.
func New(cfg *config.Config, opts Options) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	overlay := config.DefaultOverlay()
	overlay.WakeSensitivity = cfg.Wake.Threshold

	reboot := opts.Reboot
	if reboot == nil {
		reboot = func() error {
			logger.Warn("reboot requested but no platform reboot hook is wired")
			return nil
		}
	}

	a := &Agent{
		cfg:     cfg,
		client:  opts.Client,
		capture: opts.Capture,
		player:  opts.Player,
		leds:    opts.LEDs,
		vad:     opts.VAD,
		wake:    opts.Wake,
		fillers: opts.Fillers,
		telem:   opts.Telemetry,
		disco:   opts.Discovery,
		backoff: protocol.NewBackoff(cfg.BackoffBase.Std(), cfg.BackoffMax.Std()),
		errs:    NewErrHandler(logger),
		logger:  logger,
		reboot:  reboot,
		state:   StateIdle,
		overlay: overlay,
		stopCh:  make(chan struct{}),
	}
	a.registerHandlers()
	return a
}

// State returns the current agent state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Overlay returns the runtime configuration overlay in effect.
func (a *Agent) Overlay() config.Overlay {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overlay
}

// Run starts every loop and blocks until ctx is canceled or Stop is
// called. Hardware failures at startup degrade features; only total
// capture failure enters Error state, and even then the process stays up
// so remote commands keep working.
func (a *Agent) Run(ctx context.Context) error {
	defer a.Stop()

	if a.capture == nil {
		a.logger.Error("no capture source wired, entering error state")
		a.setState(StateError)
	} else if err := a.capture.Start(); err != nil {
		a.errs.Handle(err, "audio", KindFatal)
		a.setState(StateError)
	} else {
		a.setState(StateIdle)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.audioLoop()
		}()
	}

	if a.client.ServerURL() == "" && a.disco != nil {
		err := a.disco.Start(func(addr string) {
			url := fmt.Sprintf("ws://%s/hardware", addr)
			a.logger.Info("using discovered server", zap.String("url", url))
			a.client.SetServerURL(url)
		})
		if err != nil {
			a.errs.Handle(err, "discovery", KindHardwareUnavailable)
		}
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.connectionLoop(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.heartbeatLoop()
	}()

	select {
	case <-ctx.Done():
	case <-a.stopCh:
	}
	a.Stop()
	a.wg.Wait()
	return ctx.Err()
}

// Stop releases every resource on every exit path: capture device, LED
// animation and backend, network transport, discovery. Idempotent and
// safe from any goroutine.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
		if a.capture != nil {
			_ = a.capture.Close()
		}
		if a.client != nil {
			_ = a.client.Close()
		}
		if a.disco != nil {
			a.disco.Stop()
		}
		if a.leds != nil {
			a.leds.Off()
			_ = a.leds.Close()
		}
		a.logger.Info("agent stopped")
	})
}

// audioLoop reads one frame per hardware period and drives detection.
// During Processing, Speaking and Muted the frame is still consumed (the
// driver buffer must drain) but neither wake nor VAD evaluation runs.
func (a *Agent) audioLoop() {
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		frame, err := a.capture.ReadFrame()
		if err != nil {
			if err == audio.ErrNoFrame {
				continue
			}
			a.errs.Handle(err, "audio", KindHardwareTransient)
			continue
		}

		switch a.State() {
		case StateIdle:
			a.handleIdleFrame(frame)
		case StateListening:
			a.handleListeningFrame(frame)
		case StateError:
			return
		default:
			// Processing, Speaking, Muted: frame consumed and discarded
		}
	}
}

func (a *Agent) handleIdleFrame(frame []byte) {
	var confidence float64
	triggered := false

	if a.wake != nil && a.wake.Available() {
		confidence = a.wake.Process(frame)
		triggered = confidence >= a.wakeThreshold()
	} else if a.vad.Process(frame) == vad.EventSpeechStart {
		// VAD-only fallback triggering
		confidence = 1.0
		triggered = true
	}

	if !triggered {
		return
	}
	if !a.client.Connected() {
		// nowhere to stream yet; drop the trigger and rearm
		a.vad.Reset()
		if a.wake != nil {
			a.wake.Reset()
		}
		return
	}
	a.enterListening(confidence, true)
}

func (a *Agent) handleListeningFrame(frame []byte) {
	if a.vad.Process(frame) == vad.EventSpeechEnd {
		a.enterProcessing()
		return
	}
	if err := a.client.SendAudioChunk(frame); err != nil {
		a.errs.Handle(err, "protocol", KindNetworkTransient)
	}
}

// enterListening transitions to Listening: hysteresis reset, LED, then
// WAKE followed by AUDIO_START in that order.
func (a *Agent) enterListening(confidence float64, sendWake bool) {
	a.setState(StateListening)
	a.vad.Reset()
	if a.wake != nil {
		a.wake.Reset()
	}
	if sendWake {
		if err := a.client.SendWake(confidence); err != nil {
			a.errs.Handle(err, "protocol", KindNetworkTransient)
		}
	}
	if err := a.client.SendAudioStart(a.captureFormat()); err != nil {
		a.errs.Handle(err, "protocol", KindNetworkTransient)
	}
	a.sendStatus()
}

func (a *Agent) enterProcessing() {
	a.setState(StateProcessing)
	if err := a.client.SendAudioEnd("vad_silence"); err != nil {
		a.errs.Handle(err, "protocol", KindNetworkTransient)
	}
	a.sendStatus()
}

// enterSpeaking flushes the TTS buffer to playback. Playback of an empty
// buffer is a no-op and falls straight back to Idle.
func (a *Agent) enterSpeaking() {
	a.mu.Lock()
	buf := a.ttsBuf
	rate := a.ttsRate
	a.ttsBuf = nil
	volume := a.overlay.Volume
	a.mu.Unlock()

	a.setState(StateSpeaking)
	a.sendStatus()

	gen := a.currentGen()
	go func() {
		if len(buf) > 0 {
			if err := a.player.PlayPCM(buf, rate, 1, volume); err != nil {
				a.errs.Handle(err, "audio", KindHardwareTransient)
			}
		}
		a.finishSpeaking(gen)
	}()
}

// finishSpeaking returns to Idle after playback, unless another
// transition (mute, listen, stop) already superseded the speak cycle.
func (a *Agent) finishSpeaking(gen uint64) {
	a.mu.Lock()
	stale := a.state != StateSpeaking || a.gen != gen
	a.mu.Unlock()
	if stale {
		return
	}
	a.backToIdle()
}

// backToIdle resets detection and reports idle to the server.
func (a *Agent) backToIdle() {
	a.setState(StateIdle)
	a.vad.Reset()
	if a.wake != nil {
		a.wake.Reset()
	}
	a.sendStatus()
}

// setState applies the transition and its LED side effect.
func (a *Agent) setState(st State) {
	a.mu.Lock()
	prev := a.state
	a.state = st
	a.gen++
	a.mu.Unlock()

	if prev != st {
		a.logger.Info("state transition",
			zap.String("from", prev.String()),
			zap.String("to", st.String()))
	}
	if a.leds != nil {
		a.leds.SetPattern(st.ledPattern())
	}
}

func (a *Agent) currentGen() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen
}

func (a *Agent) sendStatus() {
	if !a.client.Connected() {
		return
	}
	if err := a.client.SendStatus(a.State().String()); err != nil {
		a.errs.Handle(err, "protocol", KindNetworkTransient)
	}
}

func (a *Agent) wakeThreshold() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overlay.WakeSensitivity
}

func (a *Agent) volume() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overlay.Volume
}

func (a *Agent) captureFormat() string {
	return fmt.Sprintf("pcm_s16le_%d_mono", a.cfg.Audio.SampleRate)
}

// connectionLoop is the reconnect supervisor and, while connected, the
// protocol listener. Failed handshakes back off exponentially; a
// successful reconnect resets the backoff to its base delay.
func (a *Agent) connectionLoop(ctx context.Context) {
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}

		if a.client.ServerURL() == "" {
			// waiting on discovery
			if !a.sleep(a.cfg.ReconnectInterval.Std()) {
				return
			}
			continue
		}

		if err := a.client.Connect(ctx); err != nil {
			a.errs.Handle(err, "protocol", KindNetworkTransient)
			if !a.sleep(a.backoff.Next()) {
				return
			}
			continue
		}
		a.backoff.Reset()
		a.sendStatus()

		// blocks until the transport closes; closure invalidates the session
		if err := a.client.Listen(ctx); err != nil && ctx.Err() == nil {
			a.errs.Handle(err, "protocol", KindNetworkTransient)
		}
		if !a.sleep(a.cfg.ReconnectInterval.Std()) {
			return
		}
	}
}

func (a *Agent) heartbeatLoop() {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if !a.client.Connected() {
				continue
			}
			var stats telemetry.Stats
			if a.telem != nil {
				stats = a.telem.Snapshot()
			}
			if err := a.client.SendHeartbeat(stats.UptimeSeconds, stats.CPUTempC, stats.WiFiRSSI); err != nil {
				a.errs.Handle(err, "protocol", KindNetworkTransient)
			}
		}
	}
}

// sleep waits d, returning false when the agent is stopping.
func (a *Agent) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-a.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
