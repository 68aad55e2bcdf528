package wakeword

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnavailableWithoutModel(t *testing.T) {
	d := New("", nil)
	assert.False(t, d.Available())
	assert.Equal(t, 0.0, d.Process(make([]byte, 960)))
	d.Reset() // must not panic
	assert.NoError(t, d.Close())
}

func TestUnavailableWhenModelMissing(t *testing.T) {
	d := New("/nonexistent/wake.model", nil)
	assert.False(t, d.Available())
}

func TestAvailableWithModelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wake.model")
	require.NoError(t, os.WriteFile(path, []byte("model"), 0o644))

	d := New(path, nil)
	assert.True(t, d.Available())
	assert.NoError(t, d.Close())
	assert.False(t, d.Available())
}

type stubScorer struct {
	confidence float64
	err        error
	resets     int
}

func (s *stubScorer) Score([]byte) (float64, error) { return s.confidence, s.err }
func (s *stubScorer) Reset()                        { s.resets++ }
func (s *stubScorer) Close() error                  { return nil }

func TestProcessClampsConfidence(t *testing.T) {
	s := &stubScorer{confidence: 1.7}
	d := &Detector{scorer: s, available: true}
	assert.Equal(t, 1.0, d.Process(nil))

	s.confidence = -0.3
	assert.Equal(t, 0.0, d.Process(nil))
}

func TestProcessScorerErrorIsTransient(t *testing.T) {
	d := New("", nil)
	d.scorer = &stubScorer{err: errors.New("backend hiccup")}
	d.available = true

	assert.Equal(t, 0.0, d.Process(nil))
	assert.True(t, d.Available(), "scoring errors must not disable the detector")
}

func TestResetForwardsToScorer(t *testing.T) {
	s := &stubScorer{}
	d := &Detector{scorer: s, available: true}
	d.Reset()
	assert.Equal(t, 1, s.resets)
}

func TestOnsetScorerRisesOnLoudAudio(t *testing.T) {
	s := newOnsetScorer()

	loud := make([]byte, 960)
	for i := 0; i+1 < len(loud); i += 2 {
		loud[i] = 0x10
		loud[i+1] = 0x27 // 10000
	}

	var confidence float64
	for i := 0; i < 20; i++ {
		confidence, _ = s.Score(loud)
	}
	assert.Greater(t, confidence, 0.5)

	s.Reset()
	confidence, _ = s.Score(make([]byte, 960))
	assert.Equal(t, 0.0, confidence)
}
