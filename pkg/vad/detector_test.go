package vad

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func events(d *Detector, frames []bool) []Event {
	out := make([]Event, 0, len(frames))
	for _, f := range frames {
		out = append(out, d.Step(f))
	}
	return out
}

func TestDetectorEventSequence(t *testing.T) {
	// onset after 2 speech frames, end after 3 silence frames
	d := NewDetector(500, 2, 3, nil)

	got := events(d, []bool{true, true, true, false, false, false})
	want := []Event{
		EventSilence,
		EventSpeechStart,
		EventSpeech,
		EventSilence,
		EventSilence,
		EventSpeechEnd,
	}
	assert.Equal(t, want, got)
}

func TestDetectorSingleStartAndEnd(t *testing.T) {
	d := NewDetector(500, 3, 3, nil)

	frames := make([]bool, 0, 20)
	for i := 0; i < 10; i++ {
		frames = append(frames, true)
	}
	for i := 0; i < 10; i++ {
		frames = append(frames, false)
	}

	starts, ends := 0, 0
	for _, ev := range events(d, frames) {
		switch ev {
		case EventSpeechStart:
			starts++
		case EventSpeechEnd:
			ends++
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.False(t, d.InSpeech())
}

func TestDetectorSilenceResetsOnsetCounter(t *testing.T) {
	d := NewDetector(500, 3, 3, nil)

	// never three consecutive speech frames, no start may be emitted
	got := events(d, []bool{true, true, false, true, true, false, true, true})
	for _, ev := range got {
		assert.Equal(t, EventSilence, ev)
	}
	assert.False(t, d.InSpeech())
}

func TestDetectorSpeechResetsSilenceCounter(t *testing.T) {
	d := NewDetector(500, 1, 3, nil)

	require.Equal(t, EventSpeechStart, d.Step(true))
	// two silence frames, then speech again: the end counter must restart
	assert.Equal(t, EventSilence, d.Step(false))
	assert.Equal(t, EventSilence, d.Step(false))
	assert.Equal(t, EventSpeech, d.Step(true))
	assert.Equal(t, EventSilence, d.Step(false))
	assert.Equal(t, EventSilence, d.Step(false))
	assert.Equal(t, EventSpeechEnd, d.Step(false))
}

func TestDetectorReset(t *testing.T) {
	d := NewDetector(500, 2, 3, nil)
	fresh := NewDetector(500, 2, 3, nil)

	// drive into speech and partially into silence
	d.Step(true)
	d.Step(true)
	d.Step(false)
	d.Reset()

	frames := []bool{true, true, true, false, false, false}
	assert.Equal(t, events(fresh, frames), events(d, frames))
}

func pcmFrame(amplitude int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestRMS(t *testing.T) {
	assert.Equal(t, 0.0, RMS(nil))
	assert.Equal(t, 0.0, RMS([]byte{0x01}))

	// constant amplitude: RMS equals the amplitude
	got := RMS(pcmFrame(1000, 480))
	assert.InDelta(t, 1000, got, 1e-9)

	// alternating sign has the same energy
	buf := make([]byte, 480*2)
	for i := 0; i < 480; i++ {
		v := int16(2000)
		if i%2 == 1 {
			v = -2000
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	assert.InDelta(t, 2000, RMS(buf), 1e-9)
}

func TestProcessUsesEnergyThreshold(t *testing.T) {
	d := NewDetector(500, 1, 1, nil)

	assert.Equal(t, EventSilence, d.Process(pcmFrame(100, 480)))
	assert.Equal(t, EventSpeechStart, d.Process(pcmFrame(int16(math.MaxInt16/2), 480)))
}
