package session

// State is the lifecycle position of one connection.
type State int

const (
	StateAccepted State = iota
	StateHandshaking
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
