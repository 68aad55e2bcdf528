package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wirelessSample = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
 wlan0: 0000   54.  -56.  -256        0      0      0      0      0        0
`

func TestWiFiRSSIParsing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wireless")
	require.NoError(t, os.WriteFile(path, []byte(wirelessSample), 0o644))

	c := NewCollector(nil)
	c.wirelessPath = path
	assert.Equal(t, -56, c.wifiRSSI())
}

func TestWiFiRSSIMissingFile(t *testing.T) {
	c := NewCollector(nil)
	c.wirelessPath = filepath.Join(t.TempDir(), "nope")
	assert.Equal(t, 0, c.wifiRSSI())
}

func TestWiFiRSSINoWirelessInterface(t *testing.T) {
	// header only, no data rows
	path := filepath.Join(t.TempDir(), "wireless")
	header := "Inter-| sta-|   Quality\n face | tus | link level noise\n"
	require.NoError(t, os.WriteFile(path, []byte(header), 0o644))

	c := NewCollector(nil)
	c.wirelessPath = path
	assert.Equal(t, 0, c.wifiRSSI())
}

func TestSnapshotNeverFails(t *testing.T) {
	c := NewCollector(nil)
	c.wirelessPath = "/definitely/not/there"
	s := c.Snapshot()
	assert.GreaterOrEqual(t, s.UptimeSeconds, int64(0))
}
