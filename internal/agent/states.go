package agent

// State is the agent's single authoritative mode. Exactly one is active
// at any instant; only the agent's control path writes it. Everything
// else observes it through side effects (LED pattern, audio routing).
type State int

const (
	// StateIdle waiting for a wake trigger
	StateIdle State = iota
	// StateListening streaming captured speech to the server
	StateListening
	// StateProcessing waiting for the server's reply
	StateProcessing
	// StateSpeaking playing back synthesized speech
	StateSpeaking
	// StateError capture hardware is gone; audio processing suppressed
	StateError
	// StateMuted remote-commanded mute; audio processing suspended
	StateMuted
)

// String returns string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	case StateMuted:
		return "muted"
	default:
		return "unknown"
	}
}

// ledPattern maps a state to its indicator pattern. The LED always
// reflects the current state, giving an operator a diagnostic signal
// without logs.
func (s State) ledPattern() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	case StateMuted:
		return "muted"
	default:
		return "idle"
	}
}
