package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service the server advertises.
	ServiceType = "_lingecho._tcp"
	// AgentServiceType is what the agent announces about itself.
	AgentServiceType = "_lingedge._tcp"
	domain           = "local."

	// announcePort is advertised with the agent's presence record. The
	// agent accepts no inbound connections; the record is identity only.
	announcePort = 7073
)

// Service browses the local network for the server and invokes the
// address callback with "host:port" for the first instance found. It also
// announces the agent itself so the server can enumerate devices. Both
// halves are torn down by Stop.
type Service struct {
	deviceID string
	room     string
	logger   *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	register *zeroconf.Server
	started  bool
}

// New creates a stopped discovery service.
func New(deviceID, room string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{deviceID: deviceID, room: room, logger: logger}
}

// Start begins browsing; found invokes at most once, from a background
// goroutine. Registration failures degrade to browse-only operation.
func (s *Service) Start(found func(addr string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("discovery: resolver: %w", err)
	}

	// announce the agent; best effort
	txt := []string{"id=" + s.deviceID, "room=" + s.room}
	server, err := zeroconf.Register(s.deviceID, AgentServiceType, domain, announcePort, txt, nil)
	if err != nil {
		s.logger.Warn("mdns announce failed, continuing browse-only", zap.Error(err))
	} else {
		s.register = server
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	entries := make(chan *zeroconf.ServiceEntry)

	go func() {
		delivered := false
		for entry := range entries {
			if delivered || entry == nil {
				continue
			}
			addr := entryAddr(entry)
			if addr == "" {
				continue
			}
			delivered = true
			s.logger.Info("server discovered",
				zap.String("instance", entry.Instance),
				zap.String("addr", addr))
			found(addr)
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		cancel()
		s.cancel = nil
		return fmt.Errorf("discovery: browse: %w", err)
	}

	s.started = true
	return nil
}

// Stop ceases browsing and withdraws the agent announcement. Safe to call
// more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.register != nil {
		s.register.Shutdown()
		s.register = nil
	}
	s.started = false
}

func entryAddr(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port)
	}
	if len(entry.AddrIPv6) > 0 {
		return fmt.Sprintf("[%s]:%d", entry.AddrIPv6[0], entry.Port)
	}
	return ""
}
