package workflow

import "fmt"

// transitionTable maps a source state and trigger to the target state
type transitionTable map[State]map[Trigger]State

// StateMachineBuilder collects transitions and builds machines from them
type StateMachineBuilder interface {
	// Configure returns the transition configuration for a source state
	Configure(state State) StateConfiguration

	// Build creates a machine positioned at initialState
	Build(initialState State) StateMachine
}

// StateConfiguration adds transitions out of one state
type StateConfiguration interface {
	// Permit lets trigger move the machine to toState. A trigger maps to one target.
	Permit(trigger Trigger, toState State) StateConfiguration
}

type stateMachineBuilder struct {
	transitions transitionTable
}

type stateConfig struct {
	from        State
	transitions map[Trigger]State
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{transitions: make(transitionTable)}
}

func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if _, ok := b.transitions[state]; !ok {
		b.transitions[state] = make(map[Trigger]State)
	}
	return &stateConfig{from: state, transitions: b.transitions[state]}
}

// Build copies the table so machines never share mutable state
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	table := make(transitionTable, len(b.transitions))
	for from, byTrigger := range b.transitions {
		table[from] = make(map[Trigger]State, len(byTrigger))
		for trigger, to := range byTrigger {
			table[from][trigger] = to
		}
	}
	return &stateMachine{current: initialState, transitions: table}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if c.from.IsTerminal() {
		panic(fmt.Sprintf("terminal state %s cannot permit %s", c.from, trigger))
	}
	if existing, ok := c.transitions[trigger]; ok && existing != toState {
		panic(fmt.Sprintf("%s from %s already targets %s", trigger, c.from, existing))
	}
	c.transitions[trigger] = toState
	return c
}
