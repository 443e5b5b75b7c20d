// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"bytes"

	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

const (
	mutableSideEffectStateCreated statemachine.State = iota
	mutableSideEffectStateRecorded
)

const (
	mutableSideEffectTriggerRecord statemachine.Trigger = iota
)

var mutableSideEffectDefinition = statemachine.NewBuilder(mutableSideEffectStateCreated, mutableSideEffectStateRecorded).
	Add(mutableSideEffectStateCreated, mutableSideEffectTriggerRecord, mutableSideEffectStateRecorded, nil).
	Build()

// MutableSideEffect is the entity state machine backing
// Workflow.MutableSideEffect, keyed by a user-chosen id. A new marker is
// only emitted when the freshly computed value differs from the last
// recorded one for that id; replay always rereads the recorded value and
// never invokes fn.
type MutableSideEffect struct {
	state  statemachine.State
	id     string
	Result []byte
	sink   StateMachineSink
}

// NewMutableSideEffect resolves the machine's Result. previous is the last
// recorded value for id (nil if this is the first call for id this run).
// During replay, preloadedResult (from the batch's next MutableSideEffect
// marker for this id) is used verbatim. During live execution, fn(previous)
// computes the candidate and a marker is emitted only if it differs.
func NewMutableSideEffect(
	id string,
	replaying bool,
	preloadedResult []byte,
	previous []byte,
	fn func(previous []byte) []byte,
	commandSink CommandSink,
	sink StateMachineSink,
) *MutableSideEffect {
	m := &MutableSideEffect{state: mutableSideEffectStateCreated, id: id, sink: sink}
	if replaying {
		m.Result = preloadedResult
	} else {
		candidate := fn(previous)
		m.Result = candidate
		if !bytes.Equal(candidate, previous) {
			commandSink(history.Command{
				CommandType: history.CommandTypeRecordMarker,
				Attributes: &history.MarkerRecordedAttributes{
					MarkerName: history.MarkerNameMutableSideEffect,
					Details: map[string]any{
						"details": &history.MutableSideEffectMarkerDetails{ID: id, Result: candidate},
					},
				},
			}, m)
		}
	}
	m.transition(mutableSideEffectTriggerRecord)
	return m
}

func (m *MutableSideEffect) transition(trigger statemachine.Trigger) {
	next, ok, _ := mutableSideEffectDefinition.Fire(m.state, trigger)
	if ok {
		if m.sink != nil {
			m.sink("MutableSideEffect", int(m.state), int(next), int(trigger))
		}
		m.state = next
	}
}

func (m *MutableSideEffect) HandleEvent(event *history.HistoryEvent) error { return nil }
func (m *MutableSideEffect) HandleCommand() error                          { return nil }
func (m *MutableSideEffect) Cancel() error                                 { return nil }

func (m *MutableSideEffect) IsFinalState() bool {
	return mutableSideEffectDefinition.IsFinal(m.state)
}
