// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

// The five lifecycle machines below (UpsertSearchAttributes,
// CompleteWorkflow, FailWorkflow, CancelWorkflow, ContinueAsNew) share one
// shape: a single command, a single matching terminal event, no
// cancellation. They're kept together because none of them earns its own
// file under the "one concept, one file" convention the other entity
// machines follow once trimmed down to this size.

const (
	singleCommandStateCreated statemachine.State = iota
	singleCommandStateRecorded
)

const (
	singleCommandTriggerCreate statemachine.Trigger = iota
	singleCommandTriggerEvent
)

var singleCommandDefinition = statemachine.NewBuilder(singleCommandStateCreated, singleCommandStateRecorded).
	Add(singleCommandStateCreated, singleCommandTriggerCreate, singleCommandStateRecorded, nil).
	Add(singleCommandStateRecorded, singleCommandTriggerEvent, singleCommandStateRecorded, nil).
	Build()

// UpsertSearchAttributes is the entity state machine backing
// Workflow.UpsertSearchAttributes. It never completes anything workflow
// code awaits; the coordinator just needs something to hold the command's
// bookkeeping and track the matching event.
type UpsertSearchAttributes struct {
	state statemachine.State
	sink  StateMachineSink
}

func NewUpsertSearchAttributes(
	attrs *history.UpsertWorkflowSearchAttributesAttributes,
	commandSink CommandSink,
	sink StateMachineSink,
) *UpsertSearchAttributes {
	u := &UpsertSearchAttributes{state: singleCommandStateCreated, sink: sink}
	u.transition(singleCommandTriggerCreate)
	commandSink(history.Command{
		CommandType: history.CommandTypeUpsertWorkflowSearchAttributes,
		Attributes:  attrs,
	}, u)
	return u
}

func (u *UpsertSearchAttributes) transition(trigger statemachine.Trigger) {
	next, ok, _ := singleCommandDefinition.Fire(u.state, trigger)
	if ok {
		if u.sink != nil {
			u.sink("UpsertSearchAttributes", int(u.state), int(next), int(trigger))
		}
		u.state = next
	}
}

func (u *UpsertSearchAttributes) HandleEvent(event *history.HistoryEvent) error {
	u.transition(singleCommandTriggerEvent)
	return nil
}
func (u *UpsertSearchAttributes) HandleCommand() error { return nil }
func (u *UpsertSearchAttributes) Cancel() error         { return nil }
func (u *UpsertSearchAttributes) IsFinalState() bool {
	return singleCommandDefinition.IsFinal(u.state)
}

// CompleteWorkflow is the entity state machine backing
// Workflow.CompleteWorkflow. CompleteWorkflow and FailWorkflow are mutually
// exclusive terminals: common/decision.ValidateTerminalCommand enforces
// that at most one of the two (plus Cancel/ContinueAsNew) is ever emitted
// in a single workflow task, when the coordinator's PrepareCommands moves
// the command onto the commands queue.
type CompleteWorkflow struct {
	state statemachine.State
	sink  StateMachineSink
}

func NewCompleteWorkflow(result []byte, commandSink CommandSink, sink StateMachineSink) *CompleteWorkflow {
	c := &CompleteWorkflow{state: singleCommandStateCreated, sink: sink}
	c.transition(singleCommandTriggerCreate)
	commandSink(history.Command{
		CommandType: history.CommandTypeCompleteWorkflowExecution,
		Attributes:  &history.WorkflowExecutionCompletedAttributes{Result: result},
	}, c)
	return c
}

func (c *CompleteWorkflow) transition(trigger statemachine.Trigger) {
	next, ok, _ := singleCommandDefinition.Fire(c.state, trigger)
	if ok {
		if c.sink != nil {
			c.sink("CompleteWorkflow", int(c.state), int(next), int(trigger))
		}
		c.state = next
	}
}

func (c *CompleteWorkflow) HandleEvent(event *history.HistoryEvent) error {
	c.transition(singleCommandTriggerEvent)
	return nil
}
func (c *CompleteWorkflow) HandleCommand() error { return nil }
func (c *CompleteWorkflow) Cancel() error         { return nil }
func (c *CompleteWorkflow) IsFinalState() bool {
	return singleCommandDefinition.IsFinal(c.state)
}

// FailWorkflow is the entity state machine backing Workflow.FailWorkflow.
type FailWorkflow struct {
	state statemachine.State
	sink  StateMachineSink
}

func NewFailWorkflow(failure *history.Failure, commandSink CommandSink, sink StateMachineSink) *FailWorkflow {
	f := &FailWorkflow{state: singleCommandStateCreated, sink: sink}
	f.transition(singleCommandTriggerCreate)
	commandSink(history.Command{
		CommandType: history.CommandTypeFailWorkflowExecution,
		Attributes:  &history.WorkflowExecutionFailedAttributes{Failure: failure},
	}, f)
	return f
}

func (f *FailWorkflow) transition(trigger statemachine.Trigger) {
	next, ok, _ := singleCommandDefinition.Fire(f.state, trigger)
	if ok {
		if f.sink != nil {
			f.sink("FailWorkflow", int(f.state), int(next), int(trigger))
		}
		f.state = next
	}
}

func (f *FailWorkflow) HandleEvent(event *history.HistoryEvent) error {
	f.transition(singleCommandTriggerEvent)
	return nil
}
func (f *FailWorkflow) HandleCommand() error { return nil }
func (f *FailWorkflow) Cancel() error         { return nil }
func (f *FailWorkflow) IsFinalState() bool {
	return singleCommandDefinition.IsFinal(f.state)
}

// CancelWorkflow is the entity state machine backing Workflow.CancelWorkflow
// (the workflow cancelling itself in response to an external cancel
// request, as opposed to CancelExternal which cancels a *different*
// workflow).
type CancelWorkflow struct {
	state statemachine.State
	sink  StateMachineSink
}

func NewCancelWorkflow(details []byte, commandSink CommandSink, sink StateMachineSink) *CancelWorkflow {
	c := &CancelWorkflow{state: singleCommandStateCreated, sink: sink}
	c.transition(singleCommandTriggerCreate)
	commandSink(history.Command{
		CommandType: history.CommandTypeCancelWorkflowExecution,
		Attributes:  &history.WorkflowExecutionCanceledAttributes{Details: details},
	}, c)
	return c
}

func (c *CancelWorkflow) transition(trigger statemachine.Trigger) {
	next, ok, _ := singleCommandDefinition.Fire(c.state, trigger)
	if ok {
		if c.sink != nil {
			c.sink("CancelWorkflow", int(c.state), int(next), int(trigger))
		}
		c.state = next
	}
}

func (c *CancelWorkflow) HandleEvent(event *history.HistoryEvent) error {
	c.transition(singleCommandTriggerEvent)
	return nil
}
func (c *CancelWorkflow) HandleCommand() error { return nil }
func (c *CancelWorkflow) Cancel() error         { return nil }
func (c *CancelWorkflow) IsFinalState() bool {
	return singleCommandDefinition.IsFinal(c.state)
}

// ContinueAsNew is the entity state machine backing
// Workflow.ContinueAsNewWorkflow.
type ContinueAsNew struct {
	state statemachine.State
	sink  StateMachineSink
}

func NewContinueAsNew(
	attrs *history.WorkflowExecutionContinuedAsNewAttributes,
	commandSink CommandSink,
	sink StateMachineSink,
) *ContinueAsNew {
	c := &ContinueAsNew{state: singleCommandStateCreated, sink: sink}
	c.transition(singleCommandTriggerCreate)
	commandSink(history.Command{
		CommandType: history.CommandTypeContinueAsNewWorkflowExecution,
		Attributes:  attrs,
	}, c)
	return c
}

func (c *ContinueAsNew) transition(trigger statemachine.Trigger) {
	next, ok, _ := singleCommandDefinition.Fire(c.state, trigger)
	if ok {
		if c.sink != nil {
			c.sink("ContinueAsNew", int(c.state), int(next), int(trigger))
		}
		c.state = next
	}
}

func (c *ContinueAsNew) HandleEvent(event *history.HistoryEvent) error {
	c.transition(singleCommandTriggerEvent)
	return nil
}
func (c *ContinueAsNew) HandleCommand() error { return nil }
func (c *ContinueAsNew) Cancel() error         { return nil }
func (c *ContinueAsNew) IsFinalState() bool {
	return singleCommandDefinition.IsFinal(c.state)
}
