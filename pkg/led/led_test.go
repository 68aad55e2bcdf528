package led

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameLayout(t *testing.T) {
	frame := encodeFrame(3, Color{R: 1, G: 2, B: 3}, 10)

	// zero start frame
	assert.Equal(t, []byte{0, 0, 0, 0}, frame[:4])

	// one 4-byte frame per LED: top 3 bits set + brightness, then B, G, R
	for i := 0; i < 3; i++ {
		ledFrame := frame[4+i*4 : 8+i*4]
		assert.Equal(t, []byte{0xE0 | 10, 3, 2, 1}, ledFrame)
	}

	// end frame is 0xFF padding of at least ceil(count/16) bytes
	end := frame[4+3*4:]
	require.GreaterOrEqual(t, len(end), (3+15)/16)
	for _, b := range end {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestEncodeFrameEndPaddingScales(t *testing.T) {
	frame := encodeFrame(100, Color{}, 0)
	end := frame[4+100*4:]
	assert.GreaterOrEqual(t, len(end), (100+15)/16)
}

func TestEncodeFrameClampsBrightness(t *testing.T) {
	frame := encodeFrame(1, Color{}, 99)
	assert.Equal(t, byte(0xE0|31), frame[4])
}

// recordBackend captures every hardware write in order.
type recordBackend struct {
	mu     sync.Mutex
	writes []Pattern
	offs   int
}

func (b *recordBackend) SetAll(c Color, brightness uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, Pattern{c, brightness})
	return nil
}

func (b *recordBackend) Off() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offs++
	return nil
}

func (b *recordBackend) Close() error { return nil }

func (b *recordBackend) writeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writes)
}

func TestControllerStaticPattern(t *testing.T) {
	backend := &recordBackend{}
	c := NewController(backend, nil)

	c.SetPattern("listening")
	assert.Equal(t, "listening", c.Current())
	require.Equal(t, 1, backend.writeCount())

	c.SetPattern("no-such-pattern")
	assert.Equal(t, "listening", c.Current(), "unknown patterns are ignored")
	assert.Equal(t, 1, backend.writeCount())
}

func TestControllerPulseRunsAndStopsCleanly(t *testing.T) {
	backend := &recordBackend{}
	c := NewController(backend, nil)

	c.SetPattern("thinking")
	time.Sleep(180 * time.Millisecond)
	pulses := backend.writeCount()
	assert.Greater(t, pulses, 1, "pulse must keep writing while active")

	// switching patterns stops the animation synchronously
	c.SetPattern("idle")
	after := backend.writeCount()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, after, backend.writeCount(), "no pulse writes after stop")
	assert.Equal(t, "idle", c.Current())
}

func TestControllerOffStopsPulse(t *testing.T) {
	backend := &recordBackend{}
	c := NewController(backend, nil)

	c.SetPattern("thinking")
	c.Off()
	count := backend.writeCount()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, count, backend.writeCount())
	assert.Equal(t, 1, backend.offs)
	assert.Equal(t, "", c.Current())
}

func TestControllerUpdatePatternsReappliesCurrent(t *testing.T) {
	backend := &recordBackend{}
	c := NewController(backend, nil)

	c.SetPattern("idle")
	c.UpdatePatterns(map[string]Pattern{
		"idle": {Color{R: 9}, 7},
	})

	backend.mu.Lock()
	last := backend.writes[len(backend.writes)-1]
	backend.mu.Unlock()
	assert.Equal(t, Pattern{Color{R: 9}, 7}, last)
}

func TestControllerCloseIsIdempotentlySafe(t *testing.T) {
	c := NewController(&recordBackend{}, nil)
	c.SetPattern("thinking")
	assert.NoError(t, c.Close())
}
