package stream

// ConnectionState is the lifecycle state of the managed connection.
type ConnectionState int32

const (
	// Connecting means a transport handshake is in progress.
	Connecting ConnectionState = iota
	// Open means the handshake succeeded and the read loop is running.
	Open
	// Closed means the transport is down and a reconnect is scheduled,
	// or the manager has been torn down.
	Closed
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
