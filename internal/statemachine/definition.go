// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package statemachine implements the generic finite-state-machine builder
// shared by every entity state machine in internal/entity. A Definition is
// built once per machine type and shared by every instance of that type;
// only the current State lives on the instance.
package statemachine

import "fmt"

// State tags a machine's current position. Each machine variant defines its
// own small enum of states and casts them to State at the call site.
type State int

// Trigger fires a transition. A trigger is either a CommandType, a
// history.EventType, or an explicit local event — all three are plain ints
// under the hood, so the owning machine picks whichever numbering scheme it
// needs and is responsible for keeping them collision-free within itself.
type Trigger int

// Action runs as a transition fires. It receives no arguments: by the time
// a transition is looked up, the caller already has everything it needs in
// scope (the event or command that triggered it) and closes over it.
type Action func() error

type transitionKey struct {
	from    State
	trigger Trigger
}

type transition struct {
	to     State
	action Action
}

// Definition is a compiled table of (state, trigger) -> (state, action).
// Lookup is O(1). Definitions are immutable after Build and safe to share
// across any number of machine instances.
type Definition struct {
	initial     State
	finalStates map[State]bool
	transitions map[transitionKey]transition
}

// Builder assembles a Definition. It is not safe for concurrent use; build
// the definition once at package init time and discard the builder.
type Builder struct {
	def *Definition
}

// NewBuilder starts a new Definition with the given initial state and the
// set of states considered final (terminal — no further transitions fire).
func NewBuilder(initial State, finalStates ...State) *Builder {
	fs := make(map[State]bool, len(finalStates))
	for _, s := range finalStates {
		fs[s] = true
	}
	return &Builder{
		def: &Definition{
			initial:     initial,
			finalStates: fs,
			transitions: make(map[transitionKey]transition),
		},
	}
}

// Add registers a transition. Re-registering the same (from, trigger) pair
// is a programmer error and panics immediately rather than silently
// overwriting, since that would make the FSM's behavior depend on
// registration order.
func (b *Builder) Add(from State, trigger Trigger, to State, action Action) *Builder {
	key := transitionKey{from: from, trigger: trigger}
	if _, exists := b.def.transitions[key]; exists {
		panic(fmt.Sprintf("statemachine: duplicate transition registered for state=%d trigger=%d", from, trigger))
	}
	b.def.transitions[key] = transition{to: to, action: action}
	return b
}

// Build finalizes the Definition.
func (b *Builder) Build() *Definition {
	return b.def
}

// Initial returns the state new instances of this machine start in.
func (d *Definition) Initial() State {
	return d.initial
}

// IsFinal reports whether s is one of this Definition's final states.
func (d *Definition) IsFinal(s State) bool {
	return d.finalStates[s]
}

// Fire looks up the transition for (current, trigger). If found, it runs
// the transition's action (if any) and returns the new state. If no
// transition is registered, ok is false and the caller decides whether that
// is an ignorable no-op or a determinism violation.
func (d *Definition) Fire(current State, trigger Trigger) (next State, ok bool, err error) {
	key := transitionKey{from: current, trigger: trigger}
	t, exists := d.transitions[key]
	if !exists {
		return current, false, nil
	}
	if t.action != nil {
		if err := t.action(); err != nil {
			return current, true, err
		}
	}
	return t.to, true, nil
}

// CanFire reports whether a transition exists for (current, trigger)
// without executing its action.
func (d *Definition) CanFire(current State, trigger Trigger) bool {
	_, exists := d.transitions[transitionKey{from: current, trigger: trigger}]
	return exists
}
