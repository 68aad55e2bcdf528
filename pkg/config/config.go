package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/code-100-precent/LingEdge/pkg/logger"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config is the immutable baseline configuration of the agent. It is loaded
// once at startup from a JSON file plus environment overrides and never
// mutated afterwards; runtime-tunable settings live in Overlay.
type Config struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Room       string `json:"room"`

	// ServerURL empty means locate the server via mDNS discovery.
	ServerURL        string   `json:"server_url"`
	HandshakeTimeout Duration `json:"handshake_timeout"`

	Audio AudioConfig `json:"audio"`
	VAD   VADConfig   `json:"vad"`
	Wake  WakeConfig  `json:"wake"`
	LED   LEDConfig   `json:"led"`

	FillerDir string `json:"filler_dir"`

	HeartbeatInterval Duration `json:"heartbeat_interval"`
	ReconnectInterval Duration `json:"reconnect_interval"`
	BackoffBase       Duration `json:"backoff_base"`
	BackoffMax        Duration `json:"backoff_max"`

	Log  logger.LogConfig `json:"log"`
	Mode string           `json:"mode"`
}

// AudioConfig audio capture/playback configuration
type AudioConfig struct {
	Backend         string  `json:"backend"` // "malgo" or "null"
	CaptureDevice   string  `json:"capture_device"`
	PlaybackDevice  string  `json:"playback_device"`
	SampleRate      int     `json:"sample_rate"`
	FrameDurationMs int     `json:"frame_duration_ms"`
	CaptureGain     float64 `json:"capture_gain"`
}

// VADConfig voice activity detection configuration
type VADConfig struct {
	EnergyThreshold    float64 `json:"energy_threshold"`
	SpeechThresholdMs  int     `json:"speech_threshold_ms"`
	SilenceThresholdMs int     `json:"silence_threshold_ms"`
}

// WakeConfig wake word detection configuration
type WakeConfig struct {
	ModelPath string  `json:"model_path"`
	Threshold float64 `json:"threshold"`
}

// LEDConfig LED indicator configuration
type LEDConfig struct {
	Backend  string `json:"backend"` // "noop", "spi", "gpio"
	SPIBus   string `json:"spi_bus"`
	LEDCount int    `json:"led_count"`
	GPIOPin  string `json:"gpio_pin"`
}

// Duration wraps time.Duration so config files can say "30s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration: %s", string(data))
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the baseline configuration with all defaults applied.
func Default() *Config {
	return &Config{
		DeviceName:       defaultHostname(),
		Room:             "default",
		HandshakeTimeout: Duration(10 * time.Second),
		Audio: AudioConfig{
			Backend:         "malgo",
			SampleRate:      16000,
			FrameDurationMs: 30,
			CaptureGain:     1.0,
		},
		VAD: VADConfig{
			EnergyThreshold:    500,
			SpeechThresholdMs:  300,
			SilenceThresholdMs: 900,
		},
		Wake: WakeConfig{
			Threshold: 0.5,
		},
		LED: LEDConfig{
			Backend:  "noop",
			SPIBus:   "SPI0.0",
			LEDCount: 3,
		},
		FillerDir:         "./fillers",
		HeartbeatInterval: Duration(30 * time.Second),
		ReconnectInterval: Duration(5 * time.Second),
		BackoffBase:       Duration(1 * time.Second),
		BackoffMax:        Duration(60 * time.Second),
		Log: logger.LogConfig{
			Level:      "info",
			Filename:   "",
			MaxSize:    20,
			MaxAge:     14,
			MaxBackups: 3,
		},
		Mode: "production",
	}
}

// Load reads the JSON configuration file at path, applies environment
// overrides on top, and fills in a freshly generated device id when the
// file has none (the id is written back so it stays stable across boots).
// A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	// .env is optional; absence must not affect startup
	env := os.Getenv("APP_ENV")
	if err := loadEnvFile(env); err != nil {
		log.Printf("note: .env file not loaded: %v", err)
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Unknown keys in the file are ignored by encoding/json; only the
		// fields declared on Config are ever read.
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		log.Printf("note: config file %s not found, using defaults", path)
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = uuid.NewString()
		if err := cfg.save(path); err != nil {
			log.Printf("note: could not persist generated device id: %v", err)
		}
	}

	return cfg, nil
}

// Validate checks constraints the rest of the agent relies on.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.FrameDurationMs <= 0 {
		return fmt.Errorf("config: frame_duration_ms must be positive, got %d", c.Audio.FrameDurationMs)
	}
	if c.VAD.SpeechThresholdMs <= 0 || c.VAD.SilenceThresholdMs <= 0 {
		return fmt.Errorf("config: vad thresholds must be positive")
	}
	if c.BackoffBase.Std() <= 0 || c.BackoffMax.Std() < c.BackoffBase.Std() {
		return fmt.Errorf("config: backoff_base must be positive and backoff_max >= backoff_base")
	}
	return nil
}

// FrameSamples returns the number of mono samples per capture frame.
func (c *Config) FrameSamples() int {
	return c.Audio.SampleRate * c.Audio.FrameDurationMs / 1000
}

// FrameBytes returns the byte size of one mono 16-bit capture frame.
func (c *Config) FrameBytes() int {
	return c.FrameSamples() * 2
}

// VADSpeechFrames converts the speech onset threshold to frame counts.
func (c *Config) VADSpeechFrames() int {
	return atLeastOne(c.VAD.SpeechThresholdMs / c.Audio.FrameDurationMs)
}

// VADSilenceFrames converts the speech end threshold to frame counts.
func (c *Config) VADSilenceFrames() int {
	return atLeastOne(c.VAD.SilenceThresholdMs / c.Audio.FrameDurationMs)
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func (c *Config) save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func loadEnvFile(env string) error {
	name := ".env"
	if env != "" {
		name = ".env." + env
	}
	return godotenv.Load(name)
}

func applyEnvOverrides(cfg *Config) {
	cfg.DeviceID = getStringOrDefault("DEVICE_ID", cfg.DeviceID)
	cfg.DeviceName = getStringOrDefault("DEVICE_NAME", cfg.DeviceName)
	cfg.Room = getStringOrDefault("DEVICE_ROOM", cfg.Room)
	cfg.ServerURL = getStringOrDefault("SERVER_URL", cfg.ServerURL)
	cfg.Mode = getStringOrDefault("MODE", cfg.Mode)
	cfg.Log.Level = getStringOrDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Filename = getStringOrDefault("LOG_FILENAME", cfg.Log.Filename)
	cfg.FillerDir = getStringOrDefault("FILLER_DIR", cfg.FillerDir)
	cfg.Audio.Backend = getStringOrDefault("AUDIO_BACKEND", cfg.Audio.Backend)
	cfg.Audio.CaptureDevice = getStringOrDefault("CAPTURE_DEVICE", cfg.Audio.CaptureDevice)
	cfg.Audio.PlaybackDevice = getStringOrDefault("PLAYBACK_DEVICE", cfg.Audio.PlaybackDevice)
	cfg.Audio.SampleRate = getIntOrDefault("SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.CaptureGain = getFloatOrDefault("CAPTURE_GAIN", cfg.Audio.CaptureGain)
	cfg.Wake.ModelPath = getStringOrDefault("WAKE_MODEL_PATH", cfg.Wake.ModelPath)
	cfg.Wake.Threshold = getFloatOrDefault("WAKE_THRESHOLD", cfg.Wake.Threshold)
	cfg.LED.Backend = getStringOrDefault("LED_BACKEND", cfg.LED.Backend)
	cfg.LED.SPIBus = getStringOrDefault("LED_SPI_BUS", cfg.LED.SPIBus)
	cfg.LED.LEDCount = getIntOrDefault("LED_COUNT", cfg.LED.LEDCount)
	cfg.LED.GPIOPin = getStringOrDefault("LED_GPIO_PIN", cfg.LED.GPIOPin)
}

func getStringOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func defaultHostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "lingedge"
	}
	return name
}
