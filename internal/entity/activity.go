// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"fmt"

	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

const (
	activityStateCreated statemachine.State = iota
	activityStateScheduleCommandCreated
	activityStateScheduledEventRecorded
	activityStateStarted
	activityStateCancelCommandCreated
	activityStateCompleted
	activityStateFailed
	activityStateTimedOut
	activityStateCanceled
)

const (
	activityTriggerSchedule statemachine.Trigger = iota
	activityTriggerCancel
	activityTriggerScheduledEvent
	activityTriggerStartedEvent
	activityTriggerCompletedEvent
	activityTriggerFailedEvent
	activityTriggerTimedOutEvent
	activityTriggerCancelRequestedEvent
	activityTriggerCanceledEvent
)

var activityDefinition = statemachine.NewBuilder(activityStateCreated,
	activityStateCompleted, activityStateFailed, activityStateTimedOut, activityStateCanceled,
).
	Add(activityStateCreated, activityTriggerSchedule, activityStateScheduleCommandCreated, nil).
	Add(activityStateScheduleCommandCreated, activityTriggerScheduledEvent, activityStateScheduledEventRecorded, nil).
	Add(activityStateScheduledEventRecorded, activityTriggerStartedEvent, activityStateStarted, nil).
	Add(activityStateScheduledEventRecorded, activityTriggerCompletedEvent, activityStateCompleted, nil).
	Add(activityStateScheduledEventRecorded, activityTriggerFailedEvent, activityStateFailed, nil).
	Add(activityStateScheduledEventRecorded, activityTriggerTimedOutEvent, activityStateTimedOut, nil).
	Add(activityStateStarted, activityTriggerCompletedEvent, activityStateCompleted, nil).
	Add(activityStateStarted, activityTriggerFailedEvent, activityStateFailed, nil).
	Add(activityStateStarted, activityTriggerTimedOutEvent, activityStateTimedOut, nil).
	Add(activityStateScheduledEventRecorded, activityTriggerCancel, activityStateCancelCommandCreated, nil).
	Add(activityStateStarted, activityTriggerCancel, activityStateCancelCommandCreated, nil).
	Add(activityStateCancelCommandCreated, activityTriggerCancelRequestedEvent, activityStateCancelCommandCreated, nil).
	Add(activityStateCancelCommandCreated, activityTriggerCompletedEvent, activityStateCompleted, nil).
	Add(activityStateCancelCommandCreated, activityTriggerFailedEvent, activityStateFailed, nil).
	Add(activityStateCancelCommandCreated, activityTriggerTimedOutEvent, activityStateTimedOut, nil).
	Add(activityStateCancelCommandCreated, activityTriggerCanceledEvent, activityStateCanceled, nil).
	Build()

// ActivityCompletionCallback is invoked exactly once, when the activity
// reaches a terminal state. err is nil on success.
type ActivityCompletionCallback func(result []byte, err error)

// Activity is the entity state machine backing ScheduleActivityTask.
type Activity struct {
	state              statemachine.State
	activityID         string
	activityType       string
	cancellationType   history.CancellationType
	commandSink        CommandSink
	scheduleCmd        *CancellableCommand
	cancelCmd          *CancellableCommand
	completionCallback ActivityCompletionCallback
	sink               StateMachineSink
}

// NewActivity constructs the machine and immediately emits the initial
// ScheduleActivityTask command through commandSink.
func NewActivity(
	activityID, activityType string,
	attrs *history.ActivityTaskScheduledAttributes,
	cancellationType history.CancellationType,
	commandSink CommandSink,
	sink StateMachineSink,
	onComplete ActivityCompletionCallback,
) *Activity {
	a := &Activity{
		state:              activityStateCreated,
		activityID:         activityID,
		activityType:       activityType,
		cancellationType:   cancellationType,
		commandSink:        commandSink,
		completionCallback: onComplete,
		sink:               sink,
	}
	a.transition(activityTriggerSchedule)
	a.scheduleCmd = commandSink(history.Command{
		CommandType: history.CommandTypeScheduleActivityTask,
		Attributes:  attrs,
	}, a)
	return a
}

func (a *Activity) transition(trigger statemachine.Trigger) {
	next, ok, _ := activityDefinition.Fire(a.state, trigger)
	if ok {
		if a.sink != nil {
			a.sink("Activity", int(a.state), int(next), int(trigger))
		}
		a.state = next
	}
}

func (a *Activity) HandleEvent(event *history.HistoryEvent) error {
	switch attrs := event.Attributes.(type) {
	case *history.ActivityTaskScheduledAttributes:
		a.transition(activityTriggerScheduledEvent)
	case *history.ActivityTaskStartedAttributes:
		a.transition(activityTriggerStartedEvent)
	case *history.ActivityTaskCompletedAttributes:
		a.transition(activityTriggerCompletedEvent)
		a.fireCompletion(attrs.Result, nil)
	case *history.ActivityTaskFailedAttributes:
		a.transition(activityTriggerFailedEvent)
		a.fireCompletion(nil, failureToError(attrs.Failure))
	case *history.ActivityTaskTimedOutAttributes:
		a.transition(activityTriggerTimedOutEvent)
		a.fireCompletion(nil, timeoutError(attrs.TimeoutType))
	case *history.ActivityTaskCancelRequestedAttributes:
		a.transition(activityTriggerCancelRequestedEvent)
	case *history.ActivityTaskCanceledAttributes:
		a.transition(activityTriggerCanceledEvent)
		a.fireCompletion(nil, canceledError())
	default:
		return fmt.Errorf("activity %s: unexpected event attributes %T", a.activityID, event.Attributes)
	}
	return nil
}

func (a *Activity) fireCompletion(result []byte, err error) {
	if a.completionCallback == nil {
		return
	}
	cb := a.completionCallback
	a.completionCallback = nil
	cb(result, err)
}

func (a *Activity) HandleCommand() error {
	return nil
}

// Cancel implements the per-variant cancellation policy of spec section 4.B:
// while the command has not yet been recorded, it is simply withdrawn; once
// recorded, the policy decides whether a cancel command is emitted and
// whether completion waits for its effect.
func (a *Activity) Cancel() error {
	switch a.state {
	case activityStateCreated, activityStateScheduleCommandCreated:
		if a.scheduleCmd != nil {
			a.scheduleCmd.Cancel()
		}
		a.fireCompletion(nil, canceledError())
		a.state = activityStateCanceled
		return nil
	}
	if a.cancellationType == history.CancellationTypeAbandon {
		// ABANDON never emits a cancel command and resolves immediately.
		a.fireCompletion(nil, canceledError())
		a.state = activityStateCanceled
		return nil
	}
	a.transition(activityTriggerCancel)
	a.cancelCmd = a.commandSink(history.Command{
		CommandType: history.CommandTypeRequestCancelActivityTask,
		Attributes:  &history.ActivityTaskCancelRequestedAttributes{ActivityID: a.activityID},
	}, a)
	if a.cancellationType == history.CancellationTypeTryCancel ||
		a.cancellationType == history.CancellationTypeWaitCancellationRequested {
		a.fireCompletion(nil, canceledError())
	}
	return nil
}

func (a *Activity) IsFinalState() bool {
	return activityDefinition.IsFinal(a.state)
}

func (a *Activity) ActivityID() string { return a.activityID }
