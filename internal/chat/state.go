package chat

// ConnState is the connection state of a Session.
//
//	Disconnected -> Connecting -> Connected
//	Connected -(abnormal close)-> Backoff -(timer)-> Connecting
//	any -(Disconnect)-> Disconnected
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Backoff
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Backoff:
		return "backoff"
	default:
		return "unknown"
	}
}
