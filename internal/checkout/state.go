package checkout

import "fmt"

type State string

const (
	StateReceived      State = "received"
	StateValidated     State = "validated"
	StatePriced        State = "priced"
	StateCreditChecked State = "credit_checked"
	StateStockReserved State = "stock_reserved"
	StateCommitted     State = "committed"
	StateRejected      State = "rejected"
	StateCancelled     State = "cancelled"
)

var transitions = map[State][]State{
	StateReceived:      {StateValidated},
	StateValidated:     {StatePriced},
	StatePriced:        {StateCreditChecked},
	StateCreditChecked: {StateStockReserved},
	StateStockReserved: {StateCommitted},
	StateCommitted:     {StateCancelled},
}

func (s State) Terminal() bool {
	return s == StateRejected || s == StateCancelled
}

// CanTransition reports whether to is reachable from s in one step. Rejected
// is reachable from every state before Committed.
func (s State) CanTransition(to State) bool {
	if to == StateRejected {
		return !s.Terminal() && s != StateCommitted
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// attempt tracks a single order through the checkout state machine.
type attempt struct {
	state State
	trail []State
}

func newAttempt() *attempt {
	return &attempt{state: StateReceived, trail: []State{StateReceived}}
}

func (a *attempt) advance(to State) error {
	if !a.state.CanTransition(to) {
		return fmt.Errorf("illegal checkout transition %s -> %s", a.state, to)
	}
	a.state = to
	a.trail = append(a.trail, to)
	return nil
}

// reject moves the attempt to Rejected and returns err unchanged so callers
// can write `return a.reject(err)`.
func (a *attempt) reject(err error) error {
	if a.state.CanTransition(StateRejected) {
		a.state = StateRejected
		a.trail = append(a.trail, StateRejected)
	}
	return err
}
