package vad

import (
	"math"

	"go.uber.org/zap"
)

// Event is the per-frame classification result after hysteresis.
type Event int

const (
	// EventSilence no confirmed speech in this frame
	EventSilence Event = iota
	// EventSpeechStart the onset threshold was just reached
	EventSpeechStart
	// EventSpeech a speech frame inside a confirmed utterance
	EventSpeech
	// EventSpeechEnd the silence threshold was just reached
	EventSpeechEnd
)

// String returns string representation of Event
func (e Event) String() string {
	switch e {
	case EventSilence:
		return "silence"
	case EventSpeechStart:
		return "speech_start"
	case EventSpeech:
		return "speech"
	case EventSpeechEnd:
		return "speech_end"
	default:
		return "unknown"
	}
}

// Detector classifies PCM frames as speech or silence by RMS energy and
// smooths the raw decisions with a two-counter hysteresis: speechFrames
// consecutive speech frames confirm an utterance, silenceFrames consecutive
// silence frames end it. A speech frame inside an utterance zeroes the
// silence counter; a silence frame before confirmation zeroes the speech
// counter.
type Detector struct {
	energyThreshold float64
	speechFrames    int
	silenceFrames   int

	inSpeech     bool
	speechCount  int
	silenceCount int

	logger *zap.Logger
}

// NewDetector creates a detector. speechFrames and silenceFrames are in
// units of frames, already converted from milliseconds by the caller.
func NewDetector(energyThreshold float64, speechFrames, silenceFrames int, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if speechFrames < 1 {
		speechFrames = 1
	}
	if silenceFrames < 1 {
		silenceFrames = 1
	}
	return &Detector{
		energyThreshold: energyThreshold,
		speechFrames:    speechFrames,
		silenceFrames:   silenceFrames,
		logger:          logger,
	}
}

// Process feeds one 16-bit little-endian PCM frame through the detector.
func (d *Detector) Process(pcm []byte) Event {
	return d.Step(RMS(pcm) >= d.energyThreshold)
}

// Step advances the hysteresis machine with one raw frame decision.
// Exposed separately so a different frame classifier can drive it.
func (d *Detector) Step(isSpeech bool) Event {
	if d.inSpeech {
		if isSpeech {
			d.silenceCount = 0
			return EventSpeech
		}
		d.speechCount = 0
		d.silenceCount++
		if d.silenceCount >= d.silenceFrames {
			d.inSpeech = false
			d.silenceCount = 0
			d.logger.Debug("vad speech end")
			return EventSpeechEnd
		}
		return EventSilence
	}

	if isSpeech {
		d.speechCount++
		if d.speechCount >= d.speechFrames {
			d.inSpeech = true
			d.speechCount = 0
			d.silenceCount = 0
			d.logger.Debug("vad speech start")
			return EventSpeechStart
		}
		return EventSilence
	}
	d.speechCount = 0
	return EventSilence
}

// InSpeech reports whether an utterance is currently confirmed.
func (d *Detector) InSpeech() bool {
	return d.inSpeech
}

// Reset returns the detector to the state of a freshly constructed one.
// Must be called on every transition into Listening and on return to Idle
// so hysteresis state never leaks across utterances.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechCount = 0
	d.silenceCount = 0
}

// RMS computes the root mean square of 16-bit little-endian PCM data.
// Range is 0 to 32768; normal speech typically lands between 500 and 5000,
// silence below 100.
func RMS(pcm []byte) float64 {
	sampleCount := len(pcm) / 2
	if sampleCount == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		f := float64(sample)
		sumSquares += f * f
	}
	return math.Sqrt(sumSquares / float64(sampleCount))
}
