package led

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var hostInitOnce sync.Once

// spiBackend drives an APA102-style addressable RGB strip.
type spiBackend struct {
	port  spi.PortCloser
	conn  spi.Conn
	count int
}

func newSPIBackend(bus string, count int) (*spiBackend, error) {
	if count <= 0 {
		return nil, fmt.Errorf("led: invalid led count %d", count)
	}
	var initErr error
	hostInitOnce.Do(func() {
		_, initErr = host.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("led: host init: %w", initErr)
	}

	port, err := spireg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("led: open spi bus %s: %w", bus, err)
	}
	conn, err := port.Connect(8*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("led: connect spi bus %s: %w", bus, err)
	}
	return &spiBackend{port: port, conn: conn, count: count}, nil
}

func (b *spiBackend) SetAll(c Color, brightness uint8) error {
	frame := encodeFrame(b.count, c, brightness)
	if err := b.conn.Tx(frame, nil); err != nil {
		return fmt.Errorf("led: spi tx: %w", err)
	}
	return nil
}

func (b *spiBackend) Off() error {
	return b.SetAll(Color{}, 0)
}

func (b *spiBackend) Close() error {
	_ = b.Off()
	return b.port.Close()
}

// encodeFrame builds the strip's wire format: a 4-byte zero start frame,
// one 4-byte LED frame each (0xE0|brightness, B, G, R), and an end frame
// of ceil(count/16) 0xFF bytes, at least 4.
func encodeFrame(count int, c Color, brightness uint8) []byte {
	if brightness > 31 {
		brightness = 31
	}
	endLen := (count + 15) / 16
	if endLen < 4 {
		endLen = 4
	}
	frame := make([]byte, 0, 4+count*4+endLen)
	frame = append(frame, 0x00, 0x00, 0x00, 0x00)
	for i := 0; i < count; i++ {
		frame = append(frame, 0xE0|brightness, c.B, c.G, c.R)
	}
	for i := 0; i < endLen; i++ {
		frame = append(frame, 0xFF)
	}
	return frame
}
