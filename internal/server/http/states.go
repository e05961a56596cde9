package http

// State is a stage of a request's way through the connection. Every pipeline slot goes through
// Idle, ParsingHead, AwaitingBody, Dispatched and Writing, coming back to Idle as the response is
// written. The connection itself is reported as Draining and then Closed as it's shut down.
type State uint8

const (
	Idle State = iota
	ParsingHead
	AwaitingBody
	Dispatched
	Writing
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ParsingHead:
		return "parsing head"
	case AwaitingBody:
		return "awaiting body"
	case Dispatched:
		return "dispatched"
	case Writing:
		return "writing"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnSlot is the slot number transitions of the connection itself are reported with.
const ConnSlot = -1

// TransitionFunc observes state transitions. It's called from both the reading and the writing
// side of the connection, so it must be safe for concurrent use.
type TransitionFunc func(slot int, from, to State)
