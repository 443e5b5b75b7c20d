// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"fmt"

	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

const (
	timerStateCreated statemachine.State = iota
	timerStateStartCommandCreated
	timerStateStarted
	timerStateCancelCommandCreated
	timerStateFired
	timerStateCanceled
)

const (
	timerTriggerStart statemachine.Trigger = iota
	timerTriggerCancel
	timerTriggerStartedEvent
	timerTriggerFiredEvent
	timerTriggerCanceledEvent
)

var timerDefinition = statemachine.NewBuilder(timerStateCreated, timerStateFired, timerStateCanceled).
	Add(timerStateCreated, timerTriggerStart, timerStateStartCommandCreated, nil).
	Add(timerStateStartCommandCreated, timerTriggerStartedEvent, timerStateStarted, nil).
	Add(timerStateStarted, timerTriggerFiredEvent, timerStateFired, nil).
	Add(timerStateStarted, timerTriggerCancel, timerStateCancelCommandCreated, nil).
	Add(timerStateCancelCommandCreated, timerTriggerCanceledEvent, timerStateCanceled, nil).
	Build()

// TimerCompletionCallback fires exactly once when the timer fires or is
// canceled.
type TimerCompletionCallback func(err error)

// Timer is the entity state machine backing NewTimer.
type Timer struct {
	state              statemachine.State
	timerID            string
	commandSink        CommandSink
	startCmd           *CancellableCommand
	completionCallback TimerCompletionCallback
	sink               StateMachineSink
}

func NewTimer(
	timerID string,
	attrs *history.TimerStartedAttributes,
	commandSink CommandSink,
	sink StateMachineSink,
	onComplete TimerCompletionCallback,
) *Timer {
	t := &Timer{
		state:              timerStateCreated,
		timerID:            timerID,
		commandSink:        commandSink,
		completionCallback: onComplete,
		sink:               sink,
	}
	t.transition(timerTriggerStart)
	t.startCmd = commandSink(history.Command{
		CommandType: history.CommandTypeStartTimer,
		Attributes:  attrs,
	}, t)
	return t
}

func (t *Timer) transition(trigger statemachine.Trigger) {
	next, ok, _ := timerDefinition.Fire(t.state, trigger)
	if ok {
		if t.sink != nil {
			t.sink("Timer", int(t.state), int(next), int(trigger))
		}
		t.state = next
	}
}

func (t *Timer) HandleEvent(event *history.HistoryEvent) error {
	switch event.Attributes.(type) {
	case *history.TimerStartedAttributes:
		t.transition(timerTriggerStartedEvent)
	case *history.TimerFiredAttributes:
		t.transition(timerTriggerFiredEvent)
		t.fireCompletion(nil)
	case *history.TimerCanceledAttributes:
		t.transition(timerTriggerCanceledEvent)
		t.fireCompletion(canceledError())
	default:
		return fmt.Errorf("timer %s: unexpected event attributes %T", t.timerID, event.Attributes)
	}
	return nil
}

func (t *Timer) fireCompletion(err error) {
	if t.completionCallback == nil {
		return
	}
	cb := t.completionCallback
	t.completionCallback = nil
	cb(err)
}

func (t *Timer) HandleCommand() error { return nil }

// Cancel withdraws the start command synchronously if it has not yet been
// recorded in history, resolving the completion callback immediately. Once
// the timer is STARTED, cancellation instead emits a CancelTimer command and
// waits for its corresponding event.
func (t *Timer) Cancel() error {
	if t.state == timerStateCreated || t.state == timerStateStartCommandCreated {
		if t.startCmd != nil {
			t.startCmd.Cancel()
		}
		t.fireCompletion(canceledError())
		t.state = timerStateCanceled
		return nil
	}
	t.transition(timerTriggerCancel)
	t.commandSink(history.Command{
		CommandType: history.CommandTypeCancelTimer,
		Attributes:  &history.TimerCanceledAttributes{TimerID: t.timerID},
	}, t)
	return nil
}

func (t *Timer) IsFinalState() bool {
	return timerDefinition.IsFinal(t.state)
}

func (t *Timer) TimerID() string { return t.timerID }
