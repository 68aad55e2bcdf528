package protocol

import (
	"encoding/base64"
	"strings"
)

// Message types sent by the device.
const (
	TypeAnnounce   = "announce"
	TypeWake       = "wake"
	TypeAudioStart = "audio_start"
	TypeAudioChunk = "audio_chunk"
	TypeAudioEnd   = "audio_end"
	TypeStatus     = "status"
	TypeHeartbeat  = "heartbeat"
)

// Message types received from the server.
const (
	TypeAccepted   = "accepted"
	TypeTTSStart   = "tts_start"
	TypeTTSChunk   = "tts_chunk"
	TypeTTSEnd     = "tts_end"
	TypePlayFiller = "play_filler"
	TypeCommand    = "command"
	TypeConfig     = "config"
	TypeFillerSync = "filler_sync"
)

// Command actions the server may issue. Unknown actions are logged and
// ignored by the agent.
const (
	ActionListen    = "listen"
	ActionStop      = "stop"
	ActionVolume    = "volume"
	ActionLED       = "led"
	ActionMute      = "mute"
	ActionUnmute    = "unmute"
	ActionReboot    = "reboot"
	ActionIdentify  = "identify"
	ActionTestAudio = "test_audio"
	ActionTestLEDs  = "test_leds"
	ActionLEDConfig = "led_config"
)

// Message is the single wire envelope: one JSON record per message, with
// the type field selecting which of the optional payload fields apply.
// Audio payloads travel base64-encoded inline.
type Message struct {
	Type string `json:"type"`

	// device identity (announce, and echoed on every outbound record)
	ID           string            `json:"id,omitempty"`
	Hostname     string            `json:"hostname,omitempty"`
	Room         string            `json:"room,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	HWInfo       map[string]string `json:"hw_info,omitempty"`

	// accepted
	SessionID string `json:"session_id,omitempty"`

	// wake
	Confidence float64 `json:"confidence,omitempty"`

	// audio stream
	Format   string `json:"format,omitempty"`
	AudioB64 string `json:"audio_b64,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// status
	Status string `json:"status,omitempty"`

	// heartbeat telemetry
	Uptime   int64   `json:"uptime,omitempty"`
	CPUTemp  float64 `json:"cpu_temp,omitempty"`
	WiFiRSSI int     `json:"wifi_rssi,omitempty"`

	// tts stream
	SampleRate int `json:"sample_rate,omitempty"`

	// command
	Action string                 `json:"action,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`

	// config overlay push
	Config map[string]interface{} `json:"config,omitempty"`

	// filler sync
	Fillers []FillerPayload `json:"fillers,omitempty"`
}

// FillerPayload is one entry of a filler-sync record.
type FillerPayload struct {
	ID       string `json:"id"`
	AudioB64 string `json:"audio_b64"`
}

// Audio decodes the inline base64 audio payload.
func (m *Message) Audio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.AudioB64)
}

// EncodeAudio encodes raw PCM for inline transport.
func EncodeAudio(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// knownTTSRates maps format-tag substrings to sample rates, checked in
// order when a TTS start record has no explicit sample_rate field.
var knownTTSRates = []struct {
	marker string
	rate   int
}{
	{"48000", 48000},
	{"44100", 44100},
	{"32000", 32000},
	{"24000", 24000},
	{"22050", 22050},
	{"16000", 16000},
	{"8000", 8000},
}

// DefaultTTSRate is assumed when neither an explicit field nor a known
// rate marker is present.
const DefaultTTSRate = 22050

// TTSSampleRate resolves the playback rate of a TTS stream from a
// tts_start record.
func (m *Message) TTSSampleRate() int {
	if m.SampleRate > 0 {
		return m.SampleRate
	}
	for _, k := range knownTTSRates {
		if m.Format != "" && strings.Contains(m.Format, k.marker) {
			return k.rate
		}
	}
	return DefaultTTSRate
}
