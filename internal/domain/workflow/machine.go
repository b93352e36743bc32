package workflow

import "fmt"

// StateMachine walks one aggregate through the approval states
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire reports whether trigger has a transition from the current state
	CanFire(trigger Trigger) bool

	// Fire moves to the trigger's target state or returns ErrInvalidTransition
	Fire(trigger Trigger) error
}

type stateMachine struct {
	current     State
	transitions transitionTable
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, ok := m.transitions[m.current][trigger]
	return ok
}

func (m *stateMachine) Fire(trigger Trigger) error {
	to, ok := m.transitions[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	m.current = to
	return nil
}
