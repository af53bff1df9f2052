package pipeline

import (
	"fmt"
	"time"
)

// State is a pipeline stage.
type State string

const (
	StatePending             State = "pending"
	StateExtracting          State = "extracting"
	StateRetryWait           State = "retry_wait"
	StateExtracted           State = "extracted"
	StateValidating          State = "validating"
	StateValidated           State = "validated"
	StateInvalid             State = "invalid"
	StateBenchmarking        State = "benchmarking"
	StateDone                State = "done"
	StateExtractionExhausted State = "extraction_exhausted"
	StateFailed              State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[State][]State{
	StatePending:             {StateExtracting, StateFailed},
	StateExtracting:          {StateRetryWait, StateExtracted, StateExtractionExhausted, StateFailed},
	StateRetryWait:           {StateExtracting, StateFailed},
	StateExtracted:           {StateValidating, StateFailed},
	StateValidating:          {StateValidated, StateInvalid},
	StateValidated:           {StateBenchmarking, StateFailed},
	StateInvalid:             {StateFailed},
	StateBenchmarking:        {StateDone, StateFailed},
	StateExtractionExhausted: {StateFailed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

type machine struct {
	state   State
	history []Transition
	now     func() time.Time
}

func newMachine(now func() time.Time) *machine {
	return &machine{state: StatePending, now: now}
}

// to moves the machine; re-entering the current state is a no-op so that a
// new extraction tier can start without a synthetic wait.
func (m *machine) to(next State) {
	if next == m.state {
		return
	}
	if !CanTransition(m.state, next) {
		panic(fmt.Sprintf("pipeline: illegal transition %s -> %s", m.state, next))
	}
	m.history = append(m.history, Transition{From: m.state, To: next, At: m.now()})
	m.state = next
}

// states returns the visited states, starting with pending.
func (m *machine) states() []State {
	out := []State{StatePending}
	for _, t := range m.history {
		out = append(out, t.To)
	}
	return out
}
