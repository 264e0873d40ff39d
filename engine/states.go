package engine

// State is the device operating state. Exactly one is current at any time.
type State int32

const (
	StateIdle State = iota
	StateConfig
	StateServer
	StateConnect
	StateClient
	StateError
)

var stateNames = [...]string{
	StateIdle:    "IDLE",
	StateConfig:  "CONFIG",
	StateServer:  "SERVER",
	StateConnect: "CONNECT",
	StateClient:  "CLIENT",
	StateError:   "ERROR",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// transitions lists the states reachable from each state. SERVER, CLIENT and
// ERROR are left only by rebooting.
var transitions = map[State][]State{
	StateIdle:    {StateConfig, StateConnect},
	StateConfig:  {StateServer},
	StateConnect: {StateClient, StateError},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next returns the states reachable from s.
func Next(s State) []State {
	return append([]State(nil), transitions[s]...)
}
