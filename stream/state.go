package stream

// Role distinguishes which half of the exchange this stream drives.
// The state machine itself is identical for both; only which
// direction counts as "local" vs "remote" changes.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// State is one of the five lifecycle states shared by client and
// server streams.
type State int

const (
	StateIdle State = iota
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpen:
		return "open"
	case StateHalfClosedLocal:
		return "half-closed-local"
	case StateHalfClosedRemote:
		return "half-closed-remote"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// side identifies which half-direction an event belongs to, from the
// stream's own point of view. Local and remote are symmetric in the
// transition table; only the lock-release side effects differ by
// role (see Stream.setState).
type side int

const (
	sideLocal side = iota
	sideRemote
)

// nextState computes the transition for "this side finished", per the
// symmetric table in the specification: finishing one direction moves
// idle or open -> the corresponding half-closed state; finishing the
// other then moves that half-closed state to closed (so an exchange
// that finishes both directions from idle reaches closed in two steps).
func nextState(current State, finished side) State {
	switch finished {
	case sideLocal:
		switch current {
		case StateIdle, StateOpen:
			return StateHalfClosedLocal
		case StateHalfClosedRemote:
			return StateClosed
		default:
			return current
		}
	case sideRemote:
		switch current {
		case StateIdle, StateOpen:
			return StateHalfClosedRemote
		case StateHalfClosedLocal:
			return StateClosed
		default:
			return current
		}
	}
	return current
}
