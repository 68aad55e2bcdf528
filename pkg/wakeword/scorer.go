package wakeword

import (
	"math"
)

// onsetScorer is the built-in scorer backend: a lightweight energy-onset
// heuristic that approximates a wake model by rewarding a sharp rise from
// sustained quiet to sustained voice-band energy. It exists so the agent
// exercises the full wake path on hardware where no real model is
// deployed; a neural scorer plugs in behind the same Scorer interface.
type onsetScorer struct {
	noiseFloor float64
	envelope   float64
	rising     int
}

func newOnsetScorer() *onsetScorer {
	return &onsetScorer{noiseFloor: 200}
}

func (s *onsetScorer) Score(pcm []byte) (float64, error) {
	energy := rms(pcm)

	// slow-tracking noise floor, fast-tracking envelope
	s.noiseFloor = 0.995*s.noiseFloor + 0.005*energy
	s.envelope = 0.6*s.envelope + 0.4*energy

	if s.envelope > 3*s.noiseFloor && s.envelope > 400 {
		s.rising++
	} else if s.rising > 0 {
		s.rising--
	}

	// confidence saturates after ~10 consecutive rising frames
	confidence := float64(s.rising) / 10.0
	if confidence > 1 {
		confidence = 1
	}
	return confidence, nil
}

func (s *onsetScorer) Reset() {
	s.envelope = 0
	s.rising = 0
}

func (s *onsetScorer) Close() error { return nil }

func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		v := float64(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
