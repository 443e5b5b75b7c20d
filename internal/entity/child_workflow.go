// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"fmt"

	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

const (
	childWFStateCreated statemachine.State = iota
	childWFStateStartCommandCreated
	childWFStateInitiated
	childWFStateStarted
	childWFStateCancelCommandCreated
	childWFStateCompleted
	childWFStateFailed
	childWFStateCanceled
	childWFStateTimedOut
	childWFStateTerminated
)

const (
	childWFTriggerStart statemachine.Trigger = iota
	childWFTriggerCancel
	childWFTriggerInitiatedEvent
	childWFTriggerStartedEvent
	childWFTriggerCompletedEvent
	childWFTriggerFailedEvent
	childWFTriggerCanceledEvent
	childWFTriggerTimedOutEvent
	childWFTriggerTerminatedEvent
)

var childWorkflowDefinition = statemachine.NewBuilder(childWFStateCreated,
	childWFStateCompleted, childWFStateFailed, childWFStateCanceled, childWFStateTimedOut, childWFStateTerminated,
).
	Add(childWFStateCreated, childWFTriggerStart, childWFStateStartCommandCreated, nil).
	Add(childWFStateStartCommandCreated, childWFTriggerInitiatedEvent, childWFStateInitiated, nil).
	Add(childWFStateInitiated, childWFTriggerStartedEvent, childWFStateStarted, nil).
	Add(childWFStateInitiated, childWFTriggerFailedEvent, childWFStateFailed, nil).
	Add(childWFStateStarted, childWFTriggerCompletedEvent, childWFStateCompleted, nil).
	Add(childWFStateStarted, childWFTriggerFailedEvent, childWFStateFailed, nil).
	Add(childWFStateStarted, childWFTriggerCanceledEvent, childWFStateCanceled, nil).
	Add(childWFStateStarted, childWFTriggerTimedOutEvent, childWFStateTimedOut, nil).
	Add(childWFStateStarted, childWFTriggerTerminatedEvent, childWFStateTerminated, nil).
	Add(childWFStateInitiated, childWFTriggerCancel, childWFStateCancelCommandCreated, nil).
	Add(childWFStateStarted, childWFTriggerCancel, childWFStateCancelCommandCreated, nil).
	Add(childWFStateCancelCommandCreated, childWFTriggerCompletedEvent, childWFStateCompleted, nil).
	Add(childWFStateCancelCommandCreated, childWFTriggerFailedEvent, childWFStateFailed, nil).
	Add(childWFStateCancelCommandCreated, childWFTriggerCanceledEvent, childWFStateCanceled, nil).
	Add(childWFStateCancelCommandCreated, childWFTriggerTimedOutEvent, childWFStateTimedOut, nil).
	Build()

// ChildWorkflowStartedCallback fires once the child has actually started
// remotely (InitiatedEventID resolved to a WorkflowID/RunID pair).
type ChildWorkflowStartedCallback func(workflowID, runID string, err error)

// ChildWorkflowCompletionCallback fires exactly once at the child's
// terminal outcome.
type ChildWorkflowCompletionCallback func(result []byte, err error)

// ChildWorkflow is the entity state machine backing StartChildWorkflow. It
// carries two callbacks because workflow code observes "started" and
// "completed" as two separately awaitable points.
type ChildWorkflow struct {
	state              statemachine.State
	workflowID         string
	cancellationType   history.CancellationType
	commandSink        CommandSink
	startCmd           *CancellableCommand
	onStarted          ChildWorkflowStartedCallback
	onCompleted        ChildWorkflowCompletionCallback
	sink               StateMachineSink
}

func NewChildWorkflow(
	workflowID string,
	attrs *history.StartChildWorkflowExecutionInitiatedAttributes,
	commandSink CommandSink,
	sink StateMachineSink,
	onStarted ChildWorkflowStartedCallback,
	onCompleted ChildWorkflowCompletionCallback,
) *ChildWorkflow {
	c := &ChildWorkflow{
		state:            childWFStateCreated,
		workflowID:       workflowID,
		cancellationType: attrs.CancellationType,
		commandSink:      commandSink,
		onStarted:        onStarted,
		onCompleted:      onCompleted,
		sink:             sink,
	}
	c.transition(childWFTriggerStart)
	c.startCmd = commandSink(history.Command{
		CommandType: history.CommandTypeStartChildWorkflowExecution,
		Attributes:  attrs,
	}, c)
	return c
}

func (c *ChildWorkflow) transition(trigger statemachine.Trigger) {
	next, ok, _ := childWorkflowDefinition.Fire(c.state, trigger)
	if ok {
		if c.sink != nil {
			c.sink("ChildWorkflow", int(c.state), int(next), int(trigger))
		}
		c.state = next
	}
}

func (c *ChildWorkflow) HandleEvent(event *history.HistoryEvent) error {
	switch attrs := event.Attributes.(type) {
	case *history.StartChildWorkflowExecutionInitiatedAttributes:
		c.transition(childWFTriggerInitiatedEvent)
	case *history.ChildWorkflowExecutionStartedAttributes:
		c.transition(childWFTriggerStartedEvent)
		if c.onStarted != nil {
			cb := c.onStarted
			c.onStarted = nil
			cb(attrs.WorkflowID, attrs.RunID, nil)
		}
	case *history.ChildWorkflowExecutionCompletedAttributes:
		c.transition(childWFTriggerCompletedEvent)
		c.fireCompleted(attrs.Result, nil)
	case *history.ChildWorkflowExecutionFailedAttributes:
		c.transition(childWFTriggerFailedEvent)
		c.fireCompleted(nil, failureToError(attrs.Failure))
	case *history.ChildWorkflowExecutionCanceledAttributes:
		c.transition(childWFTriggerCanceledEvent)
		c.fireCompleted(nil, canceledError())
	case *history.ChildWorkflowExecutionTimedOutAttributes:
		c.transition(childWFTriggerTimedOutEvent)
		c.fireCompleted(nil, timeoutError(string(workflowTimeoutScheduleToClose)))
	case *history.ChildWorkflowExecutionTerminatedAttributes:
		c.transition(childWFTriggerTerminatedEvent)
		c.fireCompleted(nil, fmt.Errorf("child workflow %s terminated", c.workflowID))
	default:
		return fmt.Errorf("child workflow %s: unexpected event attributes %T", c.workflowID, event.Attributes)
	}
	return nil
}

const workflowTimeoutScheduleToClose = "schedule-to-close"

func (c *ChildWorkflow) fireCompleted(result []byte, err error) {
	if c.onCompleted == nil {
		return
	}
	cb := c.onCompleted
	c.onCompleted = nil
	cb(result, err)
}

func (c *ChildWorkflow) HandleCommand() error { return nil }

// Cancel's effect depends on CancellationType: ABANDON resolves locally with
// no command; otherwise a RequestCancelExternalWorkflowExecution command is
// emitted with ChildWorkflowOnly=true, and completion waits for the actual
// terminal event unless the policy says otherwise.
func (c *ChildWorkflow) Cancel() error {
	if c.state == childWFStateCreated || c.state == childWFStateStartCommandCreated {
		if c.startCmd != nil {
			c.startCmd.Cancel()
		}
		c.fireCompleted(nil, canceledError())
		c.state = childWFStateCanceled
		return nil
	}
	if c.cancellationType == history.CancellationTypeAbandon {
		c.fireCompleted(nil, canceledError())
		c.state = childWFStateCanceled
		return nil
	}
	c.transition(childWFTriggerCancel)
	c.commandSink(history.Command{
		CommandType: history.CommandTypeRequestCancelExternalWorkflowExecution,
		Attributes: &history.RequestCancelExternalWorkflowExecutionInitiatedAttributes{
			WorkflowID:        c.workflowID,
			ChildWorkflowOnly: true,
		},
	}, c)
	if c.cancellationType == history.CancellationTypeTryCancel {
		c.fireCompleted(nil, canceledError())
	}
	return nil
}

func (c *ChildWorkflow) IsFinalState() bool {
	return childWorkflowDefinition.IsFinal(c.state)
}
