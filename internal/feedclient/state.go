package feedclient

// ConnectionState tracks the client's position in the connect/auth/subscribe
// lifecycle. Exactly one state is active at a time; transitions happen only
// inside the client.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateAuthenticating
	StateAuthenticated
	StateSubscribed
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// live reports whether the state allows subscription traffic.
func (s ConnectionState) live() bool {
	return s == StateAuthenticated || s == StateSubscribed
}
