package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 30, cfg.Audio.FrameDurationMs)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval.Std())
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval.Std())
	assert.Equal(t, time.Second, cfg.BackoffBase.Std())
	assert.Equal(t, 60*time.Second, cfg.BackoffMax.Std())
	assert.NotEmpty(t, cfg.DeviceID)
}

func TestLoadToleratesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"room": "kitchen",
		"some_future_option": {"nested": true},
		"audio": {"sample_rate": 48000, "unknown": 1}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", cfg.Room)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
}

func TestLoadGeneratesAndPersistsDeviceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")

	cfg1, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg1.DeviceID)

	// the id must have been written back and survive the next boot
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, cfg1.DeviceID, onDisk["device_id"])

	cfg2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg1.DeviceID, cfg2.DeviceID)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_URL", "ws://10.0.0.5:7070/hardware")
	t.Setenv("SAMPLE_RATE", "24000")
	t.Setenv("WAKE_THRESHOLD", "0.75")
	t.Setenv("LED_BACKEND", "spi")

	cfg, err := Load(filepath.Join(t.TempDir(), "agent.json"))
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.5:7070/hardware", cfg.ServerURL)
	assert.Equal(t, 24000, cfg.Audio.SampleRate)
	assert.Equal(t, 0.75, cfg.Wake.Threshold)
	assert.Equal(t, "spi", cfg.LED.Backend)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"audio": {"sample_rate": -1}}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_rate")
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, 90*time.Second, d.Std())

	// bare numbers are read as seconds
	require.NoError(t, json.Unmarshal([]byte(`45`), &d))
	assert.Equal(t, 45*time.Second, d.Std())

	require.Error(t, json.Unmarshal([]byte(`"not a duration"`), &d))
}

func TestFrameHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 480, cfg.FrameSamples())
	assert.Equal(t, 960, cfg.FrameBytes())
	assert.Equal(t, 10, cfg.VADSpeechFrames())
	assert.Equal(t, 30, cfg.VADSilenceFrames())
}

func TestOverlayMergeIsCopyOnWrite(t *testing.T) {
	base := DefaultOverlay()
	base.LEDPatterns["idle"] = PatternColor{R: 1, Brightness: 10}

	next := base.MergeFrom(map[string]interface{}{
		"volume": 0.25,
		"led_patterns": map[string]interface{}{
			"listening": map[string]interface{}{"r": 0, "g": 255, "b": 0},
		},
	})

	assert.Equal(t, 1, next.Version)
	assert.Equal(t, 0.25, next.Volume)
	assert.Equal(t, 1.0, base.Volume, "receiver must not change")
	assert.Contains(t, next.LEDPatterns, "idle")
	assert.Contains(t, next.LEDPatterns, "listening")
	assert.NotContains(t, base.LEDPatterns, "listening")
	// brightness defaults to full scale when omitted
	assert.Equal(t, uint8(31), next.LEDPatterns["listening"].Brightness)
}

func TestOverlayMergeClampsAndIgnoresUnknown(t *testing.T) {
	next := DefaultOverlay().MergeFrom(map[string]interface{}{
		"volume":           3.5,
		"wake_sensitivity": -1.0,
		"mystery_knob":     42,
	})

	assert.Equal(t, 1.0, next.Volume)
	assert.Equal(t, 0.0, next.WakeSensitivity)
}
