package transport

// ConnectionState describes the lifecycle of the persistent connection.
// The Manager is the only component that mutates it; everyone else reads
// it through State or a state subscription.
type ConnectionState int

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the initial handshake is in progress.
	StateConnecting

	// StateConnected means the server has acknowledged the connection.
	StateConnected

	// StateReconnecting means the connection dropped unexpectedly and
	// automatic recovery is in progress.
	StateReconnecting

	// StateFailed means automatic recovery exhausted its attempts; a
	// caller-driven Reconnect is required.
	StateFailed
)

// String returns the lowercase name of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateEvent is delivered to state subscribers on every transition.
type StateEvent struct {
	Old ConnectionState
	New ConnectionState

	// Err carries the cause for transitions into StateFailed, nil otherwise.
	Err error
}
