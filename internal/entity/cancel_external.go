// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"fmt"

	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

const (
	cancelExternalStateCreated statemachine.State = iota
	cancelExternalStateCommandCreated
	cancelExternalStateInitiated
	cancelExternalStateRequested
	cancelExternalStateFailed
)

const (
	cancelExternalTriggerStart statemachine.Trigger = iota
	cancelExternalTriggerInitiatedEvent
	cancelExternalTriggerRequestedEvent
	cancelExternalTriggerFailedEvent
)

var cancelExternalDefinition = statemachine.NewBuilder(cancelExternalStateCreated,
	cancelExternalStateRequested, cancelExternalStateFailed,
).
	Add(cancelExternalStateCreated, cancelExternalTriggerStart, cancelExternalStateCommandCreated, nil).
	Add(cancelExternalStateCommandCreated, cancelExternalTriggerInitiatedEvent, cancelExternalStateInitiated, nil).
	Add(cancelExternalStateInitiated, cancelExternalTriggerRequestedEvent, cancelExternalStateRequested, nil).
	Add(cancelExternalStateInitiated, cancelExternalTriggerFailedEvent, cancelExternalStateFailed, nil).
	Build()

// CancelExternalCompletionCallback fires once, when the cancel request is
// acknowledged or fails.
type CancelExternalCompletionCallback func(err error)

// CancelExternal is the entity state machine backing
// RequestCancelExternalWorkflowExecution: single request, single completion.
type CancelExternal struct {
	state              statemachine.State
	workflowID         string
	cmd                *CancellableCommand
	completionCallback CancelExternalCompletionCallback
	sink               StateMachineSink
}

func NewCancelExternal(
	workflowID string,
	attrs *history.RequestCancelExternalWorkflowExecutionInitiatedAttributes,
	commandSink CommandSink,
	sink StateMachineSink,
	onComplete CancelExternalCompletionCallback,
) *CancelExternal {
	c := &CancelExternal{
		state:              cancelExternalStateCreated,
		workflowID:         workflowID,
		completionCallback: onComplete,
		sink:               sink,
	}
	c.transition(cancelExternalTriggerStart)
	c.cmd = commandSink(history.Command{
		CommandType: history.CommandTypeRequestCancelExternalWorkflowExecution,
		Attributes:  attrs,
	}, c)
	return c
}

func (c *CancelExternal) transition(trigger statemachine.Trigger) {
	next, ok, _ := cancelExternalDefinition.Fire(c.state, trigger)
	if ok {
		if c.sink != nil {
			c.sink("CancelExternal", int(c.state), int(next), int(trigger))
		}
		c.state = next
	}
}

func (c *CancelExternal) HandleEvent(event *history.HistoryEvent) error {
	switch attrs := event.Attributes.(type) {
	case *history.RequestCancelExternalWorkflowExecutionInitiatedAttributes:
		c.transition(cancelExternalTriggerInitiatedEvent)
	case *history.ExternalWorkflowExecutionCancelRequestedAttributes:
		c.transition(cancelExternalTriggerRequestedEvent)
		c.fireCompletion(nil)
	case *history.RequestCancelExternalWorkflowExecutionFailedAttributes:
		c.transition(cancelExternalTriggerFailedEvent)
		c.fireCompletion(failureToError(attrs.Failure))
	default:
		return fmt.Errorf("cancel external %s: unexpected event attributes %T", c.workflowID, event.Attributes)
	}
	return nil
}

func (c *CancelExternal) fireCompletion(err error) {
	if c.completionCallback == nil {
		return
	}
	cb := c.completionCallback
	c.completionCallback = nil
	cb(err)
}

func (c *CancelExternal) HandleCommand() error { return nil }

func (c *CancelExternal) Cancel() error {
	if c.state == cancelExternalStateCreated || c.state == cancelExternalStateCommandCreated {
		if c.cmd != nil {
			c.cmd.Cancel()
		}
		c.fireCompletion(canceledError())
		c.state = cancelExternalStateFailed
	}
	return nil
}

func (c *CancelExternal) IsFinalState() bool {
	return cancelExternalDefinition.IsFinal(c.state)
}
