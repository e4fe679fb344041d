package dispatch

import "fmt"

// StateKind is the connection state tag.
type StateKind int

const (
	Disconnected StateKind = iota
	Connecting
	Connected
	Faulted
)

func (k StateKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(k))
	}
}

// ConnectionState is the queue's view of the device. DeviceID is set while
// Connected or Faulted; Err only while Faulted.
type ConnectionState struct {
	Kind     StateKind
	DeviceID string
	Err      error
}

func (s ConnectionState) String() string {
	switch s.Kind {
	case Connected:
		return fmt.Sprintf("connected(%s)", s.DeviceID)
	case Faulted:
		return fmt.Sprintf("faulted(%s: %v)", s.DeviceID, s.Err)
	default:
		return s.Kind.String()
	}
}

// IsConnected reports whether a session is open, faulted or not.
func (s ConnectionState) IsConnected() bool {
	return s.Kind == Connected || s.Kind == Faulted
}
