// pkg/cleaner/state.go
package cleaner

import "fmt"

// State is a step of the per-file cleaning pipeline
type State int

const (
	StateIdle State = iota
	StateDirectoryValidated
	StateFileSelected
	StateLoaded
	StateHeaderResolved
	StateTypesDetected
	StateNormalized
	StateProblemsAggregated
	StateSaved
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateDirectoryValidated: "directory_validated",
	StateFileSelected:       "file_selected",
	StateLoaded:             "loaded",
	StateHeaderResolved:     "header_resolved",
	StateTypesDetected:      "types_detected",
	StateNormalized:         "normalized",
	StateProblemsAggregated: "problems_aggregated",
	StateSaved:              "saved",
	StateDone:               "done",
	StateFailed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:               {StateDirectoryValidated},
	StateDirectoryValidated: {StateFileSelected},
	StateFileSelected:       {StateLoaded},
	StateLoaded:             {StateHeaderResolved, StateTypesDetected},
	StateHeaderResolved:     {StateTypesDetected},
	StateTypesDetected:      {StateNormalized},
	StateNormalized:         {StateProblemsAggregated},
	StateProblemsAggregated: {StateSaved},
	StateSaved:              {StateDone},
}

// CanTransition reports whether the pipeline may move from s to next.
// Every non-terminal state may fail.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Pipeline tracks the state of one file run and every state it went through
type Pipeline struct {
	state State
	trace []State
}

// NewPipeline starts a run in StateIdle
func NewPipeline() *Pipeline {
	return &Pipeline{state: StateIdle, trace: []State{StateIdle}}
}

// State returns the current state
func (p *Pipeline) State() State {
	return p.state
}

// Advance moves to next or returns ErrInvalidTransition
func (p *Pipeline) Advance(next State) error {
	if !p.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.state, next)
	}
	p.state = next
	p.trace = append(p.trace, next)
	return nil
}

// Fail moves to StateFailed and returns the state the failure happened in
func (p *Pipeline) Fail() State {
	at := p.state
	if !at.Terminal() {
		p.state = StateFailed
		p.trace = append(p.trace, StateFailed)
	}
	return at
}

// Trace returns the visited states in order
func (p *Pipeline) Trace() []State {
	return append([]State(nil), p.trace...)
}
