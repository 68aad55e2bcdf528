package agent

import (
	"encoding/base64"
	"math"
	"time"

	"github.com/code-100-precent/LingEdge/pkg/fillers"
	"github.com/code-100-precent/LingEdge/pkg/led"
	"github.com/code-100-precent/LingEdge/pkg/protocol"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

func (a *Agent) registerHandlers() {
	a.client.On(protocol.TypeTTSStart, a.onTTSStart)
	a.client.On(protocol.TypeTTSChunk, a.onTTSChunk)
	a.client.On(protocol.TypeTTSEnd, a.onTTSEnd)
	a.client.On(protocol.TypePlayFiller, a.onPlayFiller)
	a.client.On(protocol.TypeCommand, a.onCommand)
	a.client.On(protocol.TypeConfig, a.onConfig)
	a.client.On(protocol.TypeFillerSync, a.onFillerSync)
}

// onTTSStart opens a fresh synthesis buffer. Chunks are accumulated and
// played as one utterance; a new start discards any unplayed remainder.
func (a *Agent) onTTSStart(msg *protocol.Message) {
	rate := msg.TTSSampleRate()
	a.mu.Lock()
	a.ttsBuf = a.ttsBuf[:0]
	a.ttsRate = rate
	a.mu.Unlock()
	a.logger.Debug("tts stream opened", zap.Int("sampleRate", rate))
}

func (a *Agent) onTTSChunk(msg *protocol.Message) {
	pcm, err := msg.Audio()
	if err != nil {
		a.errs.Handle(err, "protocol", KindProtocolViolation)
		return
	}
	a.mu.Lock()
	a.ttsBuf = append(a.ttsBuf, pcm...)
	a.mu.Unlock()
}

// onTTSEnd starts playback only out of Processing. A mute, stop or
// error that landed while the server was synthesizing stays in force;
// the finished utterance is discarded, not played.
func (a *Agent) onTTSEnd(msg *protocol.Message) {
	if st := a.State(); st != StateProcessing {
		a.mu.Lock()
		a.ttsBuf = nil
		a.mu.Unlock()
		a.logger.Debug("tts stream end discarded", zap.String("state", st.String()))
		return
	}
	a.enterSpeaking()
}

// onPlayFiller plays a cached clip without touching the state machine.
// Playback is serialized against TTS inside the player, so a filler that
// is already sounding finishes before the answer starts.
func (a *Agent) onPlayFiller(msg *protocol.Message) {
	if a.fillers == nil {
		return
	}
	path, ok := a.fillers.GetRandom()
	if !ok {
		a.logger.Debug("filler requested but cache is empty")
		return
	}
	volume := a.volume()
	go func() {
		if err := a.player.PlayWAV(path, volume); err != nil {
			a.errs.Handle(err, "audio", KindHardwareTransient)
		}
	}()
}

func (a *Agent) onCommand(msg *protocol.Message) {
	a.logger.Info("command received", zap.String("action", msg.Action))
	switch msg.Action {
	case protocol.ActionListen:
		a.commandListen()
	case protocol.ActionStop:
		a.commandStop()
	case protocol.ActionVolume:
		a.applyOverlay(map[string]interface{}{"volume": cast.ToFloat64(msg.Params["level"])})
	case protocol.ActionLED:
		if a.leds != nil {
			a.leds.SetPattern(cast.ToString(msg.Params["pattern"]))
		}
	case protocol.ActionMute:
		a.commandMute()
	case protocol.ActionUnmute:
		a.commandUnmute()
	case protocol.ActionReboot:
		a.commandReboot()
	case protocol.ActionIdentify:
		go a.identify()
	case protocol.ActionTestAudio:
		go a.testAudio()
	case protocol.ActionTestLEDs:
		go a.testLEDs()
	case protocol.ActionLEDConfig:
		a.applyOverlay(map[string]interface{}{"led_patterns": msg.Params["patterns"]})
	default:
		a.logger.Warn("unknown command action ignored", zap.String("action", msg.Action))
	}
}

// commandListen forces Listening as if the wake word fired, except no
// WAKE is sent: the server asked, it does not need to be told.
func (a *Agent) commandListen() {
	if a.State() == StateError {
		a.logger.Warn("listen command ignored, audio capture is down")
		return
	}
	a.mu.Lock()
	a.ttsBuf = nil
	a.mu.Unlock()
	a.enterListening(0, false)
}

func (a *Agent) commandStop() {
	a.mu.Lock()
	a.ttsBuf = nil
	a.mu.Unlock()
	a.backToIdle()
}

func (a *Agent) commandMute() {
	a.setState(StateMuted)
	a.sendStatus()
}

func (a *Agent) commandUnmute() {
	if a.State() != StateMuted {
		return
	}
	a.backToIdle()
}

func (a *Agent) commandReboot() {
	a.logger.Warn("reboot requested by server")
	_ = a.client.SendStatus("rebooting")
	go func() {
		if err := a.reboot(); err != nil {
			a.errs.Handle(err, "system", KindFatal)
		}
	}()
}

// onConfig merges a runtime overlay. Unknown fields are ignored so old
// agents survive new server versions.
func (a *Agent) onConfig(msg *protocol.Message) {
	if len(msg.Config) == 0 {
		return
	}
	a.applyOverlay(msg.Config)
}

func (a *Agent) applyOverlay(fields map[string]interface{}) {
	a.mu.Lock()
	a.overlay = a.overlay.MergeFrom(fields)
	patterns := a.overlay.LEDPatterns
	version := a.overlay.Version
	a.mu.Unlock()

	if len(patterns) > 0 && a.leds != nil {
		converted := make(map[string]led.Pattern, len(patterns))
		for name, p := range patterns {
			converted[name] = led.Pattern{
				Color:      led.Color{R: p.R, G: p.G, B: p.B},
				Brightness: p.Brightness,
			}
		}
		a.leds.UpdatePatterns(converted)
	}
	a.logger.Info("runtime overlay applied", zap.Int("version", version))
}

// onFillerSync reconciles the on-disk filler cache against the full set
// the server sent. Receiving the same set twice is a no-op.
func (a *Agent) onFillerSync(msg *protocol.Message) {
	if a.fillers == nil {
		return
	}
	entries := make([]fillers.Entry, 0, len(msg.Fillers))
	for _, f := range msg.Fillers {
		audio, err := base64.StdEncoding.DecodeString(f.AudioB64)
		if err != nil {
			a.errs.Handle(err, "fillers", KindProtocolViolation)
			continue
		}
		entries = append(entries, fillers.Entry{ID: f.ID, Audio: audio})
	}
	if err := a.fillers.Sync(entries); err != nil {
		a.errs.Handle(err, "fillers", KindHardwareTransient)
	}
}

// identify blinks the identify pattern and chirps so a human can pick
// this unit out of a rack of identical hardware.
func (a *Agent) identify() {
	if a.leds != nil {
		a.leds.SetPattern("identify")
	}
	_ = a.player.PlayPCM(sineTone(880, 300*time.Millisecond, a.cfg.Audio.SampleRate), a.cfg.Audio.SampleRate, 1, a.volume())
	time.Sleep(2 * time.Second)
	if a.leds != nil {
		a.leds.SetPattern(a.State().ledPattern())
	}
}

func (a *Agent) testAudio() {
	if err := a.player.PlayPCM(sineTone(440, 500*time.Millisecond, a.cfg.Audio.SampleRate), a.cfg.Audio.SampleRate, 1, a.volume()); err != nil {
		a.errs.Handle(err, "audio", KindHardwareTransient)
	}
}

func (a *Agent) testLEDs() {
	if a.leds == nil {
		a.logger.Warn("led test requested but no indicator is wired")
		return
	}
	for _, name := range []string{"idle", "listening", "thinking", "speaking", "error"} {
		a.leds.SetPattern(name)
		time.Sleep(400 * time.Millisecond)
	}
	a.leds.SetPattern(a.State().ledPattern())
}

// sineTone renders a little-endian s16 mono sine at half amplitude.
func sineTone(freq float64, dur time.Duration, sampleRate int) []byte {
	n := int(float64(sampleRate) * dur.Seconds())
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)) * 16000)
		buf[2*i] = byte(v)
		buf[2*i+1] = byte(v >> 8)
	}
	return buf
}
