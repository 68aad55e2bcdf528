package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Handler consumes one inbound message. Handlers run on the Listen
// goroutine; a panic inside a handler is recovered and logged so the
// dispatch loop never dies.
type Handler func(msg *Message)

// Identity is what the device announces about itself on connect.
type Identity struct {
	DeviceID     string
	Hostname     string
	Room         string
	Capabilities []string
	HWInfo       map[string]string
}

// Client is the persistent duplex connection to the server. "Ready to
// send" means the ANNOUNCE/ACCEPTED handshake completed; the transport
// being merely dialed is never observable from outside.
type Client struct {
	serverURL        string
	identity         Identity
	handshakeTimeout time.Duration
	logger           *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	connected bool

	handlerMu sync.RWMutex
	handlers  map[string]Handler
}

// NewClient creates an unconnected client.
func NewClient(serverURL string, identity Identity, handshakeTimeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &Client{
		serverURL:        serverURL,
		identity:         identity,
		handshakeTimeout: handshakeTimeout,
		logger:           logger,
		handlers:         make(map[string]Handler),
	}
}

// SetServerURL updates the dial target (used when discovery finds the
// server after construction).
func (c *Client) SetServerURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverURL = url
}

// ServerURL returns the current dial target.
func (c *Client) ServerURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverURL
}

// On registers the handler for an inbound message type. Registering
// replaces any previous handler for that type.
func (c *Client) On(msgType string, h Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[msgType] = h
}

// Connect dials the server and runs the handshake: ANNOUNCE out, then an
// ACCEPTED record carrying the session id must arrive within the
// handshake timeout. Any other reply, or a timeout, is a connection
// failure and leaves no session behind.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	url := c.serverURL
	c.mu.Unlock()
	if url == "" {
		return fmt.Errorf("protocol: no server address")
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("protocol: dial %s: %w", url, err)
	}

	announce := &Message{
		Type:         TypeAnnounce,
		ID:           c.identity.DeviceID,
		Hostname:     c.identity.Hostname,
		Room:         c.identity.Room,
		Capabilities: c.identity.Capabilities,
		HWInfo:       c.identity.HWInfo,
	}
	conn.SetWriteDeadline(time.Now().Add(c.handshakeTimeout))
	if err := conn.WriteJSON(announce); err != nil {
		conn.Close()
		return fmt.Errorf("protocol: send announce: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	var reply Message
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return fmt.Errorf("protocol: handshake read: %w", err)
	}
	if reply.Type != TypeAccepted || reply.SessionID == "" {
		conn.Close()
		return fmt.Errorf("protocol: unexpected handshake reply %q", reply.Type)
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.sessionID = reply.SessionID
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("session accepted",
		zap.String("session_id", reply.SessionID),
		zap.String("server", url))
	return nil
}

// Connected reports whether the handshake completed and the transport is
// still up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SessionID returns the server-issued session id, empty when not
// connected. Session ids are never reused across reconnects.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Listen blocks reading inbound records and dispatching them to
// registered handlers until the transport closes or ctx is canceled.
// Closure invalidates the session.
func (c *Client) Listen(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("protocol: not connected")
	}
	defer c.teardown()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// unblock the read loop on cancellation
			c.Close()
		case <-done:
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("connection lost", zap.Error(err))
			}
			return err
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *Message) {
	c.handlerMu.RLock()
	h := c.handlers[msg.Type]
	c.handlerMu.RUnlock()

	if h == nil {
		c.logger.Warn("no handler for message type", zap.String("type", msg.Type))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic, dispatch loop continues",
				zap.String("type", msg.Type),
				zap.Any("panic", r))
		}
	}()
	h(msg)
}

// SendWake reports a wake detection.
func (c *Client) SendWake(confidence float64) error {
	return c.send(&Message{Type: TypeWake, Confidence: confidence})
}

// SendAudioStart opens an utterance stream.
func (c *Client) SendAudioStart(format string) error {
	return c.send(&Message{Type: TypeAudioStart, Format: format})
}

// SendAudioChunk forwards one captured frame, base64-encoded inline.
func (c *Client) SendAudioChunk(pcm []byte) error {
	return c.send(&Message{Type: TypeAudioChunk, AudioB64: EncodeAudio(pcm)})
}

// SendAudioEnd terminates the utterance stream with a reason.
func (c *Client) SendAudioEnd(reason string) error {
	return c.send(&Message{Type: TypeAudioEnd, Reason: reason})
}

// SendStatus reports the agent state.
func (c *Client) SendStatus(status string) error {
	return c.send(&Message{Type: TypeStatus, Status: status})
}

// SendHeartbeat reports liveness telemetry.
func (c *Client) SendHeartbeat(uptime int64, cpuTemp float64, wifiRSSI int) error {
	return c.send(&Message{Type: TypeHeartbeat, Uptime: uptime, CPUTemp: cpuTemp, WiFiRSSI: wifiRSSI})
}

func (c *Client) send(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return fmt.Errorf("protocol: not connected")
	}
	msg.ID = c.identity.DeviceID
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("protocol: send %s: %w", msg.Type, err)
	}
	return nil
}

// Close tears the connection down and invalidates the session. Safe to
// call at any time, from any goroutine, more than once.
func (c *Client) Close() error {
	return c.teardown()
}

func (c *Client) teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.sessionID = ""
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
