package engine

import "fmt"

// State is a pipeline run state.
type State int

const (
	StateIdle State = iota
	StateListing
	StateBatching
	StateFinalizing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListing:
		return "Listing"
	case StateBatching:
		return "Batching"
	case StateFinalizing:
		return "Finalizing"
	case StateDone:
		return "Done"
	case StateAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state := StateIdle; state <= StateAborted; state++ {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown pipeline state %q", text)
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

var transitions = map[State][]State{
	StateIdle:       {StateListing},
	StateListing:    {StateBatching, StateFinalizing, StateAborted},
	StateBatching:   {StateBatching, StateFinalizing, StateAborted},
	StateFinalizing: {StateDone, StateAborted},
}

// CanTransition reports whether a run may move from one state to another.
// Listing may go straight to Finalizing when the catalog is empty.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
