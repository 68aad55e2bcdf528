package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func samples(vals ...int16) []byte {
	buf := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func toInt16(buf []byte) []int16 {
	out := make([]int16, len(buf)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out
}

func TestDownmixStereo(t *testing.T) {
	// (x+y)/2 with integer division per pair
	got := DownmixStereo(samples(100, 200, -100, -200, 3, 4))
	assert.Equal(t, []int16{150, -150, 3}, toInt16(got))

	// extremes stay in range
	got = DownmixStereo(samples(32767, 32767, -32768, -32768))
	assert.Equal(t, []int16{32767, -32768}, toInt16(got))

	// trailing incomplete pair is dropped
	got = DownmixStereo(samples(10, 20, 30))
	assert.Equal(t, []int16{15}, toInt16(got))
}

func TestUpmixMono(t *testing.T) {
	got := UpmixMono(samples(7, -9))
	assert.Equal(t, []int16{7, 7, -9, -9}, toInt16(got))

	assert.Empty(t, UpmixMono(nil))
}

func TestApplyGain(t *testing.T) {
	got := ApplyGain(samples(100, -100, 0), 2.0)
	assert.Equal(t, []int16{200, -200, 0}, toInt16(got))

	// clamped at the 16-bit bounds
	got = ApplyGain(samples(30000, -30000), 2.0)
	assert.Equal(t, []int16{32767, -32768}, toInt16(got))

	// unity gain leaves samples untouched
	in := samples(123, -456)
	assert.Equal(t, in, ApplyGain(in, 1.0))
}
