// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

const (
	sideEffectStateCreated statemachine.State = iota
	sideEffectStateRecorded
)

const (
	sideEffectTriggerRecord statemachine.Trigger = iota
)

var sideEffectDefinition = statemachine.NewBuilder(sideEffectStateCreated, sideEffectStateRecorded).
	Add(sideEffectStateCreated, sideEffectTriggerRecord, sideEffectStateRecorded, nil).
	Build()

// SideEffect is the entity state machine backing Workflow.SideEffect. Unlike
// Activity/Timer/ChildWorkflow it resolves synchronously: the coordinator
// hands NewSideEffect either a freshly-computed result (live execution) or
// the result preloaded from the batch's next SideEffect marker (replay, see
// Coordinator.preloadMarkers), and the caller reads Result back immediately
// with no promise involved.
type SideEffect struct {
	state  statemachine.State
	id     int64
	Result []byte
	sink   StateMachineSink
}

// NewSideEffect runs fn and records its result as a marker, unless
// replaying, in which case preloadedResult (read from history by the
// coordinator before dispatch) is used verbatim and fn is never invoked —
// the determinism rule that makes SideEffect safe to call from code that
// has since changed.
func NewSideEffect(
	id int64,
	replaying bool,
	preloadedResult []byte,
	fn func() []byte,
	commandSink CommandSink,
	sink StateMachineSink,
) *SideEffect {
	s := &SideEffect{state: sideEffectStateCreated, id: id, sink: sink}
	if replaying {
		s.Result = preloadedResult
	} else {
		s.Result = fn()
		commandSink(history.Command{
			CommandType: history.CommandTypeRecordMarker,
			Attributes: &history.MarkerRecordedAttributes{
				MarkerName: history.MarkerNameSideEffect,
				Details: map[string]any{
					"details": &history.SideEffectMarkerDetails{SideEffectID: id, Result: s.Result},
				},
			},
		}, s)
	}
	s.transition(sideEffectTriggerRecord)
	return s
}

func (s *SideEffect) transition(trigger statemachine.Trigger) {
	next, ok, _ := sideEffectDefinition.Fire(s.state, trigger)
	if ok {
		if s.sink != nil {
			s.sink("SideEffect", int(s.state), int(next), int(trigger))
		}
		s.state = next
	}
}

// HandleEvent is only invoked when the coordinator routes the matched
// marker event back for bookkeeping/audit purposes; the result was already
// resolved at construction time.
func (s *SideEffect) HandleEvent(event *history.HistoryEvent) error {
	return nil
}

func (s *SideEffect) HandleCommand() error { return nil }

// Cancel is a no-op: a side effect marker, once decided, cannot be undone.
func (s *SideEffect) Cancel() error { return nil }

func (s *SideEffect) IsFinalState() bool {
	return sideEffectDefinition.IsFinal(s.state)
}
