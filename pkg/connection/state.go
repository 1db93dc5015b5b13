package connection

// State is the engine's internal connection state.
type State uint8

const (
	// StateDisconnected indicates no socket.
	StateDisconnected State = iota

	// StateConnecting indicates a dial is in flight.
	StateConnecting

	// StateConnected indicates an open socket.
	StateConnected

	// StateDisconnecting indicates a requested close is in flight.
	StateDisconnecting

	// StateAutoReconnectPending indicates the socket was lost and an
	// auto-reconnect task is queued.
	StateAutoReconnectPending
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateAutoReconnectPending:
		return "AUTO_RECONNECT_PENDING"
	default:
		return "UNKNOWN"
	}
}
