package stream

// State is one node of the per-stream state machine in spec.md §4.2:
//
//	idle --open--> open --send-end--> half-closed-local --recv-trailer--> closed
//	                |                                        ^
//	                +--recv-end--> half-closed-remote --------+
//	                                    |
//	                                    +--send-trailer--> closed
//	                any state --reset/error--> closed
type State int

const (
	Idle State = iota
	Open
	HalfClosedLocal  // this side has finished sending
	HalfClosedRemote // the peer has finished sending
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Open:
		return "open"
	case HalfClosedLocal:
		return "half-closed-local"
	case HalfClosedRemote:
		return "half-closed-remote"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Machine is the mutable per-stream state machine. It holds no locks
// of its own; callers (transport/memory's per-stream records) are
// responsible for serializing access.
type Machine struct {
	state State
}

// NewMachine returns a Machine in the Open state — by the time a
// stream record exists, OpenStream has already transitioned it past
// Idle (spec.md's "idle --open--> open").
func NewMachine() *Machine {
	return &Machine{state: Open}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// SendEnd records that this side closed its send half, transitioning
// Open -> HalfClosedLocal or HalfClosedRemote -> Closed.
func (m *Machine) SendEnd() {
	switch m.state {
	case Open:
		m.state = HalfClosedLocal
	case HalfClosedRemote:
		m.state = Closed
	}
}

// RecvEnd records that the peer closed its send half, transitioning
// Open -> HalfClosedRemote or HalfClosedLocal -> Closed.
func (m *Machine) RecvEnd() {
	switch m.state {
	case Open:
		m.state = HalfClosedRemote
	case HalfClosedLocal:
		m.state = Closed
	}
}

// Reset forces the stream to Closed from any state, per "any state
// --reset/error--> closed".
func (m *Machine) Reset() {
	m.state = Closed
}

// CanSend reports whether this side may still send frames.
func (m *Machine) CanSend() bool {
	return m.state == Open || m.state == HalfClosedRemote
}

// CanRecv reports whether this side may still receive frames.
func (m *Machine) CanRecv() bool {
	return m.state == Open || m.state == HalfClosedLocal
}

// Done reports whether the stream has reached its terminal state.
func (m *Machine) Done() bool {
	return m.state == Closed
}
