package wakeword

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Scorer produces a per-frame wake-word confidence in [0,1].
type Scorer interface {
	// Score consumes one mono 16-bit PCM frame and returns the current
	// confidence that the wake phrase was just spoken.
	Score(pcm []byte) (float64, error)
	// Reset clears any streaming state between detections.
	Reset()
	Close() error
}

// Detector wraps an optional inference backend. When no backend could be
// loaded at startup the detector reports unavailable and the agent falls
// back to VAD-only triggering.
type Detector struct {
	scorer    Scorer
	available bool
	logger    *zap.Logger
}

// New loads the scorer backend for the model at modelPath. A missing or
// unloadable model is not an error: the detector comes back unavailable.
func New(modelPath string, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{logger: logger}

	if modelPath == "" {
		logger.Info("no wake word model configured, falling back to VAD-only triggering")
		return d
	}
	scorer, err := loadScorer(modelPath)
	if err != nil {
		logger.Warn("wake word backend unavailable, falling back to VAD-only triggering",
			zap.String("model", modelPath), zap.Error(err))
		return d
	}
	d.scorer = scorer
	d.available = true
	logger.Info("wake word detector ready", zap.String("model", modelPath))
	return d
}

// Available reports whether a scorer backend was loaded.
func (d *Detector) Available() bool {
	return d.available
}

// Process scores one frame. Returns 0 when unavailable or on a transient
// backend error (logged, never fatal).
func (d *Detector) Process(pcm []byte) float64 {
	if !d.available {
		return 0
	}
	confidence, err := d.scorer.Score(pcm)
	if err != nil {
		d.logger.Debug("wake word scoring failed", zap.Error(err))
		return 0
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// Reset clears streaming state between detections.
func (d *Detector) Reset() {
	if d.available {
		d.scorer.Reset()
	}
}

// Close releases the backend.
func (d *Detector) Close() error {
	if !d.available {
		return nil
	}
	d.available = false
	return d.scorer.Close()
}

func loadScorer(modelPath string) (Scorer, error) {
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, fmt.Errorf("wakeword: model %s: %w", modelPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("wakeword: model path %s is a directory", modelPath)
	}
	return newOnsetScorer(), nil
}
