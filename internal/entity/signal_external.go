// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"fmt"

	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

const (
	signalExternalStateCreated statemachine.State = iota
	signalExternalStateCommandCreated
	signalExternalStateInitiated
	signalExternalStateSignaled
	signalExternalStateFailed
)

const (
	signalExternalTriggerStart statemachine.Trigger = iota
	signalExternalTriggerInitiatedEvent
	signalExternalTriggerSignaledEvent
	signalExternalTriggerFailedEvent
)

var signalExternalDefinition = statemachine.NewBuilder(signalExternalStateCreated,
	signalExternalStateSignaled, signalExternalStateFailed,
).
	Add(signalExternalStateCreated, signalExternalTriggerStart, signalExternalStateCommandCreated, nil).
	Add(signalExternalStateCommandCreated, signalExternalTriggerInitiatedEvent, signalExternalStateInitiated, nil).
	Add(signalExternalStateInitiated, signalExternalTriggerSignaledEvent, signalExternalStateSignaled, nil).
	Add(signalExternalStateInitiated, signalExternalTriggerFailedEvent, signalExternalStateFailed, nil).
	Build()

// SignalExternalCompletionCallback fires once, when the external workflow
// acknowledges the signal or the request fails.
type SignalExternalCompletionCallback func(err error)

// SignalExternal is the entity state machine backing
// SignalExternalWorkflowExecution: single request, single completion.
type SignalExternal struct {
	state              statemachine.State
	workflowID         string
	cmd                *CancellableCommand
	completionCallback SignalExternalCompletionCallback
	sink               StateMachineSink
}

func NewSignalExternal(
	workflowID string,
	attrs *history.SignalExternalWorkflowExecutionInitiatedAttributes,
	commandSink CommandSink,
	sink StateMachineSink,
	onComplete SignalExternalCompletionCallback,
) *SignalExternal {
	s := &SignalExternal{
		state:              signalExternalStateCreated,
		workflowID:         workflowID,
		completionCallback: onComplete,
		sink:               sink,
	}
	s.transition(signalExternalTriggerStart)
	s.cmd = commandSink(history.Command{
		CommandType: history.CommandTypeSignalExternalWorkflowExecution,
		Attributes:  attrs,
	}, s)
	return s
}

func (s *SignalExternal) transition(trigger statemachine.Trigger) {
	next, ok, _ := signalExternalDefinition.Fire(s.state, trigger)
	if ok {
		if s.sink != nil {
			s.sink("SignalExternal", int(s.state), int(next), int(trigger))
		}
		s.state = next
	}
}

func (s *SignalExternal) HandleEvent(event *history.HistoryEvent) error {
	switch attrs := event.Attributes.(type) {
	case *history.SignalExternalWorkflowExecutionInitiatedAttributes:
		s.transition(signalExternalTriggerInitiatedEvent)
	case *history.ExternalWorkflowExecutionSignaledAttributes:
		s.transition(signalExternalTriggerSignaledEvent)
		s.fireCompletion(nil)
	case *history.SignalExternalWorkflowExecutionFailedAttributes:
		s.transition(signalExternalTriggerFailedEvent)
		s.fireCompletion(failureToError(attrs.Failure))
	default:
		return fmt.Errorf("signal external %s: unexpected event attributes %T", s.workflowID, event.Attributes)
	}
	return nil
}

func (s *SignalExternal) fireCompletion(err error) {
	if s.completionCallback == nil {
		return
	}
	cb := s.completionCallback
	s.completionCallback = nil
	cb(err)
}

func (s *SignalExternal) HandleCommand() error { return nil }

// Cancel withdraws the command if it has not yet been recorded; once
// recorded, a signal request cannot be withdrawn from the service, so this
// is a no-op.
func (s *SignalExternal) Cancel() error {
	if s.state == signalExternalStateCreated || s.state == signalExternalStateCommandCreated {
		if s.cmd != nil {
			s.cmd.Cancel()
		}
		s.fireCompletion(canceledError())
		s.state = signalExternalStateFailed
	}
	return nil
}

func (s *SignalExternal) IsFinalState() bool {
	return signalExternalDefinition.IsFinal(s.state)
}
