// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"fmt"

	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

const (
	workflowTaskStateCreated statemachine.State = iota
	workflowTaskStateScheduled
	workflowTaskStateStarted
	workflowTaskStateCompleted
	workflowTaskStateFailed
	workflowTaskStateTimedOut
)

const (
	workflowTaskTriggerScheduledEvent statemachine.Trigger = iota
	workflowTaskTriggerStartedEvent
	workflowTaskTriggerCompletedEvent
	workflowTaskTriggerFailedEvent
	workflowTaskTriggerTimedOutEvent
)

var workflowTaskDefinition = statemachine.NewBuilder(workflowTaskStateCreated).
	Add(workflowTaskStateCreated, workflowTaskTriggerScheduledEvent, workflowTaskStateScheduled, nil).
	Add(workflowTaskStateScheduled, workflowTaskTriggerStartedEvent, workflowTaskStateStarted, nil).
	Add(workflowTaskStateStarted, workflowTaskTriggerCompletedEvent, workflowTaskStateCompleted, nil).
	Add(workflowTaskStateStarted, workflowTaskTriggerFailedEvent, workflowTaskStateFailed, nil).
	Add(workflowTaskStateStarted, workflowTaskTriggerTimedOutEvent, workflowTaskStateTimedOut, nil).
	// A failed or timed-out task is retried by the service with a fresh
	// SCHEDULED/STARTED pair; this machine is never final, unlike every
	// other entity machine, since it tracks the coordinator's own
	// long-running bookkeeping rather than one durable call.
	Add(workflowTaskStateCompleted, workflowTaskTriggerScheduledEvent, workflowTaskStateScheduled, nil).
	Add(workflowTaskStateFailed, workflowTaskTriggerScheduledEvent, workflowTaskStateScheduled, nil).
	Add(workflowTaskStateTimedOut, workflowTaskTriggerScheduledEvent, workflowTaskStateScheduled, nil).
	Build()

// StartedCallback fires on the STARTED transition, handing the coordinator
// the event's CurrentTimeMillis so it can advance CurrentStartedEventID and
// the deterministic clock before releasing queued commands. Its error is
// the workflow task's error.
type StartedCallback func(eventID int64, currentTimeMillis int64) error

// WorkflowTask is the internal machine tracking the
// SCHEDULED -> STARTED -> COMPLETED/FAILED/TIMED_OUT cycle of the
// workflow's own task processing, one per coordinator, never dropped.
type WorkflowTask struct {
	state     statemachine.State
	onStarted StartedCallback
	sink      StateMachineSink
}

func NewWorkflowTask(sink StateMachineSink, onStarted StartedCallback) *WorkflowTask {
	return &WorkflowTask{state: workflowTaskStateCreated, onStarted: onStarted, sink: sink}
}

func (w *WorkflowTask) transition(trigger statemachine.Trigger) {
	next, ok, _ := workflowTaskDefinition.Fire(w.state, trigger)
	if ok {
		if w.sink != nil {
			w.sink("WorkflowTask", int(w.state), int(next), int(trigger))
		}
		w.state = next
	}
}

func (w *WorkflowTask) HandleEvent(event *history.HistoryEvent) error {
	switch attrs := event.Attributes.(type) {
	case *history.WorkflowTaskStartedAttributes:
		w.transition(workflowTaskTriggerScheduledEvent)
		w.transition(workflowTaskTriggerStartedEvent)
		if w.onStarted != nil {
			return w.onStarted(event.EventID, attrs.CurrentTimeMillis)
		}
	default:
		return fmt.Errorf("workflow task: unexpected event attributes %T", event.Attributes)
	}
	return nil
}

// HandleScheduled, HandleCompleted, HandleFailed and HandleTimedOut are called directly by the coordinator
// for the WorkflowTaskScheduled/Completed/Failed/TimedOut events, which
// carry no payload the machine needs beyond the transition itself.
func (w *WorkflowTask) HandleScheduled() { w.transition(workflowTaskTriggerScheduledEvent) }
func (w *WorkflowTask) HandleCompleted() { w.transition(workflowTaskTriggerCompletedEvent) }
func (w *WorkflowTask) HandleFailed()    { w.transition(workflowTaskTriggerFailedEvent) }
func (w *WorkflowTask) HandleTimedOut()  { w.transition(workflowTaskTriggerTimedOutEvent) }

func (w *WorkflowTask) HandleCommand() error { return nil }
func (w *WorkflowTask) Cancel() error         { return nil }

// IsFinalState is always false: the WorkflowTask machine outlives any
// single task cycle for the life of the coordinator.
func (w *WorkflowTask) IsFinalState() bool { return false }
