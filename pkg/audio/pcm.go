package audio

// Helpers for 16-bit signed little-endian PCM sample layout conversion.
// The capture pipeline is mono; hardware frequently is not.

// DownmixStereo converts interleaved stereo PCM to mono by taking the
// arithmetic mean of each L/R sample pair, saturated to the 16-bit range.
// A trailing incomplete pair is dropped.
func DownmixStereo(stereo []byte) []byte {
	pairs := len(stereo) / 4
	mono := make([]byte, pairs*2)
	for i := 0; i < pairs; i++ {
		l := int32(int16(uint16(stereo[i*4]) | uint16(stereo[i*4+1])<<8))
		r := int32(int16(uint16(stereo[i*4+2]) | uint16(stereo[i*4+3])<<8))
		m := clamp16((l + r) / 2)
		mono[i*2] = byte(m)
		mono[i*2+1] = byte(m >> 8)
	}
	return mono
}

// UpmixMono converts mono PCM to interleaved stereo by duplicating each
// sample into both channels.
func UpmixMono(mono []byte) []byte {
	samples := len(mono) / 2
	stereo := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		lo, hi := mono[i*2], mono[i*2+1]
		stereo[i*4] = lo
		stereo[i*4+1] = hi
		stereo[i*4+2] = lo
		stereo[i*4+3] = hi
	}
	return stereo
}

// ApplyGain scales every sample by gain and clamps the result to the
// 16-bit range. The input is modified in place and returned. A gain of
// 1.0 is a no-op.
func ApplyGain(pcm []byte, gain float64) []byte {
	if gain == 1.0 {
		return pcm
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		scaled := clamp16(int32(float64(s) * gain))
		pcm[i] = byte(scaled)
		pcm[i+1] = byte(scaled >> 8)
	}
	return pcm
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
