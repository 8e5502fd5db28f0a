package discoverhotvideos

import (
	"errors"
	"fmt"
)

// State is a step of the job lifecycle.
type State string

const (
	StateReceived   State = "Received"
	StateValidating State = "Validating"
	StateProcessing State = "Processing"
	StateQuerying   State = "Querying"
	StateFormatting State = "Formatting"
	StatePublishing State = "Publishing"
	StateDone       State = "Done"
	StateFailed     State = "Failed"
	StateAbandoned  State = "Abandoned"
)

var ErrIllegalTransition = errors.New("ILLEGAL_STATE_TRANSITION")

// transitions lists every allowed move. Failed is reachable from each
// non-terminal state; Abandoned only before anything past the processing
// feedback has been published.
var transitions = map[State][]State{
	StateReceived:   {StateValidating, StateFailed, StateAbandoned},
	StateValidating: {StateProcessing, StateFailed, StateAbandoned},
	StateProcessing: {StateQuerying, StateFailed, StateAbandoned},
	StateQuerying:   {StateFormatting, StateFailed, StateAbandoned},
	StateFormatting: {StatePublishing, StateFailed},
	StatePublishing: {StateDone, StateFailed},
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateAbandoned
}

func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// stateMachine tracks one job. It is owned by a single goroutine.
type stateMachine struct {
	current State
	history []State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateReceived, history: []State{StateReceived}}
}

func (m *stateMachine) State() State { return m.current }

func (m *stateMachine) History() []State {
	return append([]State(nil), m.history...)
}

func (m *stateMachine) Transition(to State) error {
	if !CanTransition(m.current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.current, to)
	}
	m.current = to
	m.history = append(m.history, to)
	return nil
}
