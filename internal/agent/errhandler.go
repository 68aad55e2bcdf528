package agent

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"go.uber.org/zap"
)

// ErrorKind classifies every failure the agent can meet, and with it the
// reaction: degrade, skip, reconnect, or enter Error state. The process
// itself never dies on any of these.
type ErrorKind int

const (
	// KindHardwareUnavailable a device or bus is missing: degrade the
	// feature, log, continue
	KindHardwareUnavailable ErrorKind = iota
	// KindHardwareTransient a single read/write failed: skip the cycle
	KindHardwareTransient
	// KindNetworkTransient connect/read/write failure or timeout:
	// backoff reconnect
	KindNetworkTransient
	// KindProtocolViolation unexpected message type or order: treated as
	// a connection failure
	KindProtocolViolation
	// KindFatal total capture failure: Error state, audio suppressed,
	// process stays alive for remote commands
	KindFatal
)

// String returns string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindHardwareUnavailable:
		return "hardware_unavailable"
	case KindHardwareTransient:
		return "hardware_transient"
	case KindNetworkTransient:
		return "network_transient"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the unified error carrying its kind and originating subsystem.
type Error struct {
	Kind      ErrorKind
	Subsystem string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Subsystem, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Subsystem, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified error.
func NewError(kind ErrorKind, subsystem, message string, err error) *Error {
	return &Error{Kind: kind, Subsystem: subsystem, Message: message, Err: err}
}

// ErrHandler logs classified errors at a severity matching their kind.
type ErrHandler struct {
	logger *zap.Logger
}

// NewErrHandler creates an error handler.
func NewErrHandler(logger *zap.Logger) *ErrHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrHandler{logger: logger}
}

// Classify wraps err as an *Error of the given fallback kind unless it
// already carries a classification or is recognizably a network error.
func (h *ErrHandler) Classify(err error, subsystem string, fallback ErrorKind) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	kind := fallback
	if isNetworkError(err) {
		kind = KindNetworkTransient
	}
	return &Error{Kind: kind, Subsystem: subsystem, Message: err.Error(), Err: err}
}

// Handle classifies and logs err, returning the classified form.
func (h *ErrHandler) Handle(err error, subsystem string, fallback ErrorKind) *Error {
	classified := h.Classify(err, subsystem, fallback)
	if classified == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("subsystem", classified.Subsystem),
		zap.String("kind", classified.Kind.String()),
		zap.Error(classified.Err),
	}
	switch classified.Kind {
	case KindFatal:
		h.logger.Error("fatal error", fields...)
	case KindHardwareUnavailable, KindProtocolViolation:
		h.logger.Warn("degraded", fields...)
	default:
		h.logger.Debug("transient error", fields...)
	}
	return classified
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"timeout",
		"network is unreachable",
		"no route to host",
	} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}
