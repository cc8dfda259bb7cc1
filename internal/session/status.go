package session

import "fmt"

// State is the connection phase of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Closing:
		return "Closing"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Status is the observable connection status. Code and Reason are set for
// Closing, Message for Failed.
type Status struct {
	State   State
	Code    int
	Reason  string
	Message string
}

// String renders the status as display text.
func (s Status) String() string {
	switch s.State {
	case Connecting:
		return "Connecting..."
	case Closing:
		if s.Reason == "" {
			return fmt.Sprintf("Closing (%d)", s.Code)
		}
		return fmt.Sprintf("Closing (%d: %s)", s.Code, s.Reason)
	case Failed:
		return "Failed: " + s.Message
	default:
		return s.State.String()
	}
}
