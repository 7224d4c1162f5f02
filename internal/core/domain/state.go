package domain

import "fmt"

// ProcessingState is a position in the bundle lifecycle.
type ProcessingState string

const (
	StateNone         ProcessingState = "NONE"
	StateAcceptBundle ProcessingState = "ACCEPT_BUNDLE"
	StateDisposition  ProcessingState = "DISPOSITION"
	StateForward      ProcessingState = "FORWARD"
	StateComplete     ProcessingState = "COMPLETE"
	StateFail         ProcessingState = "FAIL"
)

// transitions is the lifecycle graph. FAIL -> FORWARD is the replay edge.
var transitions = map[ProcessingState][]ProcessingState{
	StateNone:         {StateAcceptBundle},
	StateAcceptBundle: {StateDisposition},
	StateDisposition:  {StateForward},
	StateForward:      {StateComplete, StateFail},
	StateFail:         {StateForward},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to ProcessingState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsReplayEdge reports whether from -> to is the replay edge.
func IsReplayEdge(from, to ProcessingState) bool {
	return from == StateFail && to == StateForward
}

// IsTerminal reports whether no forward progress happens without a replay.
func (s ProcessingState) IsTerminal() bool {
	return s == StateComplete || s == StateFail
}

// Valid reports whether s is a known state.
func (s ProcessingState) Valid() bool {
	if s == StateComplete {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// Transition is one recorded edge.
type Transition struct {
	From ProcessingState
	To   ProcessingState
}

// ValidatePath checks that an ordered list of recorded transitions is a
// contiguous walk through the lifecycle graph starting at NONE. Every edge
// must exist and each From must match the previous To.
func ValidatePath(path []Transition) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	if path[0].From != StateNone {
		return fmt.Errorf("transition 0: path starts at %s, not %s", path[0].From, StateNone)
	}
	for i, t := range path {
		if !CanTransition(t.From, t.To) {
			return fmt.Errorf("transition %d: %s -> %s is not a lifecycle edge", i, t.From, t.To)
		}
		if i > 0 && path[i-1].To != t.From {
			return fmt.Errorf("transition %d: starts at %s but previous transition ended at %s", i, t.From, path[i-1].To)
		}
	}
	return nil
}
