package session

// StateKind enumerates connection states.
type StateKind int

const (
	Disconnected StateKind = iota
	Connecting
	Connected
	Failed
)

func (k StateKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the connection state. Reason is set only for Failed.
type State struct {
	Kind   StateKind
	Reason string
}

func (s State) String() string {
	if s.Kind == Failed {
		return "failed: " + s.Reason
	}
	return s.Kind.String()
}

// ReasonInvalidEndpoint is the Failed reason for unusable connection settings.
const ReasonInvalidEndpoint = "invalid endpoint"
