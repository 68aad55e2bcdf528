package telemetry

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// Stats is the liveness telemetry attached to a heartbeat.
type Stats struct {
	UptimeSeconds int64
	CPUTempC      float64
	WiFiRSSI      int
}

// Collector gathers host stats. Every probe is best effort: a sensor that
// is missing on this board reports zero, never an error.
type Collector struct {
	logger       *zap.Logger
	wirelessPath string
}

// NewCollector creates a collector.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger, wirelessPath: "/proc/net/wireless"}
}

// Snapshot returns the current stats.
func (c *Collector) Snapshot() Stats {
	var s Stats

	if uptime, err := host.Uptime(); err == nil {
		s.UptimeSeconds = int64(uptime)
	} else {
		c.logger.Debug("uptime probe failed", zap.Error(err))
	}

	s.CPUTempC = c.cpuTemp()
	s.WiFiRSSI = c.wifiRSSI()
	return s
}

func (c *Collector) cpuTemp() float64 {
	temps, err := host.SensorsTemperatures()
	if err != nil || len(temps) == 0 {
		return 0
	}
	// prefer the SoC/CPU sensor, fall back to the first reading
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "soc") || strings.Contains(key, "coretemp") {
			return t.Temperature
		}
	}
	return temps[0].Temperature
}

// wifiRSSI parses the signal level column of /proc/net/wireless. Returns
// 0 when the interface has no wireless stats (wired or unknown).
func (c *Collector) wifiRSSI() int {
	f, err := os.Open(c.wirelessPath)
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if line <= 2 {
			continue // two header lines
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		// fields: iface, status, link, level, ...
		level := strings.TrimSuffix(fields[3], ".")
		if rssi, err := strconv.ParseFloat(level, 64); err == nil {
			return int(rssi)
		}
	}
	return 0
}
