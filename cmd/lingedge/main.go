package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/code-100-precent/LingEdge/internal/agent"
	"github.com/code-100-precent/LingEdge/pkg/audio"
	"github.com/code-100-precent/LingEdge/pkg/config"
	"github.com/code-100-precent/LingEdge/pkg/discovery"
	"github.com/code-100-precent/LingEdge/pkg/fillers"
	"github.com/code-100-precent/LingEdge/pkg/led"
	"github.com/code-100-precent/LingEdge/pkg/logger"
	"github.com/code-100-precent/LingEdge/pkg/protocol"
	"github.com/code-100-precent/LingEdge/pkg/telemetry"
	"github.com/code-100-precent/LingEdge/pkg/vad"
	"github.com/code-100-precent/LingEdge/pkg/wakeword"
	"go.uber.org/zap"
)

// version is stamped by the build via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "agent.json", "path to the agent configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	lg := logger.Lg

	lg.Info("lingedge starting",
		zap.String("deviceID", cfg.DeviceID),
		zap.String("room", cfg.Room),
		zap.String("server", cfg.ServerURL))

	a, err := buildAgent(cfg, lg)
	if err != nil {
		lg.Fatal("assemble agent", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		lg.Error("agent exited", zap.Error(err))
	}
	lg.Info("lingedge stopped")
}

// buildAgent wires every hardware-facing collaborator, degrading to null
// implementations when a device cannot be opened so the agent still
// comes up on developer machines and half-provisioned units.
func buildAgent(cfg *config.Config, lg *zap.Logger) (*agent.Agent, error) {
	audioBackend, err := audio.NewBackend(cfg.Audio.Backend)
	if err != nil {
		lg.Warn("audio backend unavailable, using null backend", zap.Error(err))
		audioBackend = audio.NewNullBackend()
	}

	capture := audio.NewCapture(audioBackend, audio.StreamConfig{
		Device:       cfg.Audio.CaptureDevice,
		SampleRate:   cfg.Audio.SampleRate,
		Channels:     1,
		FrameSamples: cfg.FrameSamples(),
	}, cfg.Audio.CaptureGain, lg)
	player := audio.NewPlayer(audioBackend, cfg.Audio.PlaybackDevice, lg)

	ledBackend, err := led.NewBackend(led.Config{
		Kind:     cfg.LED.Backend,
		SPIBus:   cfg.LED.SPIBus,
		LEDCount: cfg.LED.LEDCount,
		GPIOPin:  cfg.LED.GPIOPin,
	})
	if err != nil {
		lg.Warn("led backend unavailable, indicator disabled", zap.Error(err))
		ledBackend = led.NewNoopBackend()
	}
	leds := led.NewController(ledBackend, lg)

	fillerCache, err := fillers.New(cfg.FillerDir, lg)
	if err != nil {
		return nil, fmt.Errorf("filler cache: %w", err)
	}

	detector := vad.NewDetector(
		cfg.VAD.EnergyThreshold,
		cfg.VADSpeechFrames(),
		cfg.VADSilenceFrames(),
		lg,
	)
	wake := wakeword.New(cfg.Wake.ModelPath, lg)

	hostname, _ := os.Hostname()
	client := protocol.NewClient(cfg.ServerURL, protocol.Identity{
		DeviceID:     cfg.DeviceID,
		Hostname:     hostname,
		Room:         cfg.Room,
		Capabilities: capabilities(cfg, wake),
		HWInfo: map[string]string{
			"os":      runtime.GOOS,
			"arch":    runtime.GOARCH,
			"name":    cfg.DeviceName,
			"version": version,
		},
	}, cfg.HandshakeTimeout.Std(), lg)

	var disco agent.DiscoveryService
	if cfg.ServerURL == "" {
		disco = discovery.New(cfg.DeviceID, cfg.Room, lg)
	}

	return agent.New(cfg, agent.Options{
		Client:    client,
		Capture:   capture,
		Player:    player,
		LEDs:      leds,
		VAD:       detector,
		Wake:      wake,
		Fillers:   fillerCache,
		Telemetry: telemetry.NewCollector(lg),
		Discovery: disco,
		Logger:    lg,
		Reboot:    rebootHost,
	}), nil
}

func capabilities(cfg *config.Config, wake *wakeword.Detector) []string {
	caps := []string{"audio", "vad"}
	if wake.Available() {
		caps = append(caps, "wake_word")
	}
	if cfg.LED.Backend != "noop" {
		caps = append(caps, "led")
	}
	return caps
}

// rebootHost asks the init system for a reboot. Requires the unit to run
// with the necessary privileges; failure is reported back to the agent.
func rebootHost() error {
	return syscall.Reboot(syscall.LINUX_REBOOT_CMD_RESTART)
}
