// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package simulator plays the orchestration service and worker roles
// against a single coordinator, so a workflow can be executed end to end
// with no service connection: commands drained from the coordinator are
// answered with the history events a real service would record. The replay
// CLI uses it to run a workflow from an empty history, and tests use it to
// produce legal histories to replay.
package simulator

import (
	"fmt"
	"time"

	"github.com/xdblab/wfreplay/common/clock"
	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/common/log/tag"
	"github.com/xdblab/wfreplay/internal/activityretry"
	"github.com/xdblab/wfreplay/internal/coordinator"
	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/timergate"
)

// ActivityFunc executes one (local or remote) activity attempt.
type ActivityFunc func(input []byte) ([]byte, error)

// simulated executions all start at the same fixed epoch so that the
// histories they produce replay byte-identically
const simulationEpochMillis = int64(1700000000000)

// Outcome is how the simulated workflow execution ended.
type Outcome struct {
	Status  Status
	Result  []byte
	Failure *history.Failure
}

type Status string

const (
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"
	StatusContinuedAsNew Status = "continuedAsNew"
)

type pendingTimer struct {
	timerID        string
	startedEventID int64
	fireAtMillis   int64
}

type injection struct {
	signalName string
	input      []byte
	cancel     bool
}

// Simulator drives one coordinator to completion.
type Simulator struct {
	coord           *coordinator.Coordinator
	logger          log.Logger
	gate            *timergate.Gate
	activities      map[string]ActivityFunc
	localActivities map[string]ActivityFunc
	childResults    map[string]ActivityFunc
	invocations     map[string]int

	eventID   int64
	nowMillis int64

	pendingTimers      []pendingTimer
	injected           []injection
	activityScheduleID map[string]int64

	// History accumulates every event fed to the coordinator, so a test can
	// replay the exact same execution on a fresh coordinator.
	History []*history.HistoryEvent
}

// New constructs a Simulator around coord. realtime selects whether timers
// elapse on the wall clock (through a timergate.Gate) or advance virtually.
func New(coord *coordinator.Coordinator, realtime bool, logger log.Logger) *Simulator {
	s := &Simulator{
		coord:              coord,
		logger:             logger,
		activities:         make(map[string]ActivityFunc),
		localActivities:    make(map[string]ActivityFunc),
		childResults:       make(map[string]ActivityFunc),
		invocations:        make(map[string]int),
		nowMillis:          simulationEpochMillis,
		activityScheduleID: make(map[string]int64),
	}
	if realtime {
		s.gate = timergate.NewGate(clock.NewRealTimeSource(), logger)
	}
	return s
}

// RegisterActivity binds an activity type to its implementation.
func (s *Simulator) RegisterActivity(activityType string, fn ActivityFunc) {
	s.activities[activityType] = fn
}

// RegisterLocalActivity binds a local activity type to its implementation.
func (s *Simulator) RegisterLocalActivity(activityType string, fn ActivityFunc) {
	s.localActivities[activityType] = fn
}

// RegisterChildWorkflow binds a child workflow type to a function producing
// the child's simulated result.
func (s *Simulator) RegisterChildWorkflow(workflowType string, fn ActivityFunc) {
	s.childResults[workflowType] = fn
}

// EnqueueSignal queues an external signal; each queued injection is
// delivered in its own workflow task, in order.
func (s *Simulator) EnqueueSignal(name string, input []byte) {
	s.injected = append(s.injected, injection{signalName: name, input: input})
}

// EnqueueCancelRequest queues an external cancellation request.
func (s *Simulator) EnqueueCancelRequest() {
	s.injected = append(s.injected, injection{cancel: true})
}

// Invocations reports how many attempts of the given activity type ran.
func (s *Simulator) Invocations(activityType string) int {
	return s.invocations[activityType]
}

func (s *Simulator) nextEventID() int64 {
	s.eventID++
	return s.eventID
}

// Run executes the workflow to its terminal command. The workflow root
// must already be registered on the coordinator. Run may only be called
// once per Simulator: it shuts the timer gate down on return.
func (s *Simulator) Run(workflowID, workflowType string, input []byte) (*Outcome, error) {
	if s.gate != nil {
		defer s.gate.Close()
	}
	first := []*history.HistoryEvent{
		{EventID: s.nextEventID(), EventType: history.EventTypeWorkflowExecutionStarted,
			Attributes: &history.WorkflowExecutionStartedAttributes{
				WorkflowID: workflowID, WorkflowType: workflowType, RunID: s.coord.RunID(), Input: input,
			}},
	}
	first = append(first, s.workflowTaskPair()...)
	if err := s.feed(first); err != nil {
		return nil, err
	}

	for round := 0; round < 10000; round++ {
		if err := s.dispatchLocalActivities(); err != nil {
			return nil, err
		}

		commands := s.coord.DrainCommands()
		events := []*history.HistoryEvent{
			{EventID: s.nextEventID(), EventType: history.EventTypeWorkflowTaskCompleted},
		}
		var results []*history.HistoryEvent
		for _, cmd := range commands {
			echo, cmdResults, outcome, err := s.applyCommand(cmd)
			if err != nil {
				return nil, err
			}
			events = append(events, echo...)
			results = append(results, cmdResults...)
			if outcome != nil {
				if err := s.feed(events); err != nil {
					return nil, err
				}
				return outcome, nil
			}
		}

		results = append(results, s.injectOne()...)
		if len(results) == 0 {
			fired, err := s.fireNextTimer()
			if err != nil {
				return nil, err
			}
			results = fired
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("simulation stalled: no pending timers, results, or injections")
		}

		events = append(events, results...)
		events = append(events, s.workflowTaskPair()...)
		if err := s.feed(events); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("simulation did not terminate")
}

func (s *Simulator) workflowTaskPair() []*history.HistoryEvent {
	scheduled := &history.HistoryEvent{EventID: s.nextEventID(), EventType: history.EventTypeWorkflowTaskScheduled}
	startedID := s.nextEventID()
	started := &history.HistoryEvent{EventID: startedID, EventType: history.EventTypeWorkflowTaskStarted,
		Attributes: &history.WorkflowTaskStartedAttributes{CurrentTimeMillis: s.nowMillis}}
	s.coord.SetWorkflowTaskStartedEventID(startedID)
	return []*history.HistoryEvent{scheduled, started}
}

func (s *Simulator) feed(events []*history.HistoryEvent) error {
	for i, event := range events {
		s.History = append(s.History, event)
		if err := s.coord.HandleEvent(event, i < len(events)-1); err != nil {
			return err
		}
	}
	return nil
}

// applyCommand answers one drained command the way the service would:
// echo is the command event(s) recorded immediately, results are the
// asynchronous outcome events delivered before the next workflow task.
func (s *Simulator) applyCommand(cmd history.Command) (echo, results []*history.HistoryEvent, outcome *Outcome, err error) {
	switch attrs := cmd.Attributes.(type) {
	case *history.TimerStartedAttributes:
		startedID := s.nextEventID()
		echo = append(echo, &history.HistoryEvent{EventID: startedID, EventType: history.EventTypeTimerStarted, Attributes: attrs})
		s.pendingTimers = append(s.pendingTimers, pendingTimer{
			timerID:        attrs.TimerID,
			startedEventID: startedID,
			fireAtMillis:   s.nowMillis + attrs.Duration.Milliseconds(),
		})
		if s.gate != nil {
			s.gate.Schedule(attrs.TimerID, startedID, attrs.Duration)
		}

	case *history.TimerCanceledAttributes:
		echo = append(echo, &history.HistoryEvent{EventID: s.nextEventID(), EventType: history.EventTypeTimerCanceled, Attributes: attrs})
		remaining := s.pendingTimers[:0]
		for _, t := range s.pendingTimers {
			if t.timerID != attrs.TimerID {
				remaining = append(remaining, t)
			}
		}
		s.pendingTimers = remaining
		if s.gate != nil {
			s.gate.CancelTimer(attrs.TimerID)
		}

	case *history.ActivityTaskScheduledAttributes:
		scheduledID := s.nextEventID()
		s.activityScheduleID[attrs.ActivityID] = scheduledID
		echo = append(echo, &history.HistoryEvent{EventID: scheduledID, EventType: history.EventTypeActivityTaskScheduled, Attributes: attrs})
		results = s.executeActivity(scheduledID, attrs)

	case *history.ActivityTaskCancelRequestedAttributes:
		echo = append(echo, &history.HistoryEvent{EventID: s.nextEventID(), EventType: history.EventTypeActivityTaskCancelRequested, Attributes: attrs})
		if scheduledID, ok := s.activityScheduleID[attrs.ActivityID]; ok {
			results = append(results, &history.HistoryEvent{
				EventID: s.nextEventID(), EventType: history.EventTypeActivityTaskCanceled,
				Attributes: &history.ActivityTaskCanceledAttributes{ScheduledEventID: scheduledID},
			})
		}

	case *history.MarkerRecordedAttributes:
		echo = append(echo, &history.HistoryEvent{EventID: s.nextEventID(), EventType: history.EventTypeMarkerRecorded, Attributes: attrs})

	case *history.UpsertWorkflowSearchAttributesAttributes:
		echo = append(echo, &history.HistoryEvent{EventID: s.nextEventID(), EventType: history.EventTypeUpsertWorkflowSearchAttributes, Attributes: attrs})

	case *history.StartChildWorkflowExecutionInitiatedAttributes:
		initiatedID := s.nextEventID()
		echo = append(echo, &history.HistoryEvent{EventID: initiatedID, EventType: history.EventTypeStartChildWorkflowExecutionInitiated, Attributes: attrs})
		results = s.executeChildWorkflow(initiatedID, attrs)

	case *history.SignalExternalWorkflowExecutionInitiatedAttributes:
		initiatedID := s.nextEventID()
		echo = append(echo, &history.HistoryEvent{EventID: initiatedID, EventType: history.EventTypeSignalExternalWorkflowExecutionInitiated, Attributes: attrs})
		results = append(results, &history.HistoryEvent{
			EventID: s.nextEventID(), EventType: history.EventTypeExternalWorkflowExecutionSignaled,
			Attributes: &history.ExternalWorkflowExecutionSignaledAttributes{InitiatedEventID: initiatedID},
		})

	case *history.RequestCancelExternalWorkflowExecutionInitiatedAttributes:
		initiatedID := s.nextEventID()
		echo = append(echo, &history.HistoryEvent{EventID: initiatedID, EventType: history.EventTypeRequestCancelExternalWorkflowExecutionInitiated, Attributes: attrs})
		results = append(results, &history.HistoryEvent{
			EventID: s.nextEventID(), EventType: history.EventTypeExternalWorkflowExecutionCancelRequested,
			Attributes: &history.ExternalWorkflowExecutionCancelRequestedAttributes{InitiatedEventID: initiatedID},
		})

	case *history.WorkflowExecutionCompletedAttributes:
		echo = append(echo, &history.HistoryEvent{EventID: s.nextEventID(), EventType: history.EventTypeWorkflowExecutionCompleted, Attributes: attrs})
		outcome = &Outcome{Status: StatusCompleted, Result: attrs.Result}

	case *history.WorkflowExecutionFailedAttributes:
		echo = append(echo, &history.HistoryEvent{EventID: s.nextEventID(), EventType: history.EventTypeWorkflowExecutionFailed, Attributes: attrs})
		outcome = &Outcome{Status: StatusFailed, Failure: attrs.Failure}

	case *history.WorkflowExecutionCanceledAttributes:
		echo = append(echo, &history.HistoryEvent{EventID: s.nextEventID(), EventType: history.EventTypeWorkflowExecutionCanceled, Attributes: attrs})
		outcome = &Outcome{Status: StatusCanceled}

	case *history.WorkflowExecutionContinuedAsNewAttributes:
		echo = append(echo, &history.HistoryEvent{EventID: s.nextEventID(), EventType: history.EventTypeWorkflowExecutionContinuedAsNew, Attributes: attrs})
		outcome = &Outcome{Status: StatusContinuedAsNew}

	default:
		err = fmt.Errorf("simulator cannot apply command %s", cmd.CommandType)
	}
	return echo, results, outcome, err
}

// executeActivity runs the registered activity with the command's retry
// policy, advancing simulated time by each backoff, and returns the
// STARTED + terminal events the service would record. Only the final
// attempt's outcome appears in history.
func (s *Simulator) executeActivity(scheduledID int64, attrs *history.ActivityTaskScheduledAttributes) []*history.HistoryEvent {
	fn, ok := s.activities[attrs.ActivityType]
	if !ok {
		fn = func([]byte) ([]byte, error) { return nil, nil }
	}
	firstAttemptStart := time.UnixMilli(s.nowMillis)
	var attempt int32
	var lastFailure *history.Failure
	var result []byte
	for {
		attempt++
		s.invocations[attrs.ActivityType]++
		res, err := fn(attrs.Input)
		if err == nil {
			result = res
			lastFailure = nil
			break
		}
		lastFailure = coordinator.FailureFromError(err)
		backoff, shouldRetry := activityretry.GetNextBackoff(
			attempt, lastFailure, firstAttemptStart, time.UnixMilli(s.nowMillis), attrs.RetryPolicy)
		if !shouldRetry {
			break
		}
		nextStart := s.nowMillis + backoff.Milliseconds()
		if attrs.ScheduleToCloseTimeout > 0 &&
			nextStart-firstAttemptStart.UnixMilli() >= attrs.ScheduleToCloseTimeout.Milliseconds() {
			break
		}
		s.nowMillis = nextStart
	}

	events := []*history.HistoryEvent{{
		EventID: s.nextEventID(), EventType: history.EventTypeActivityTaskStarted,
		Attributes: &history.ActivityTaskStartedAttributes{ScheduledEventID: scheduledID, Attempt: attempt},
	}}
	if lastFailure == nil {
		events = append(events, &history.HistoryEvent{
			EventID: s.nextEventID(), EventType: history.EventTypeActivityTaskCompleted,
			Attributes: &history.ActivityTaskCompletedAttributes{ScheduledEventID: scheduledID, Result: result},
		})
	} else {
		events = append(events, &history.HistoryEvent{
			EventID: s.nextEventID(), EventType: history.EventTypeActivityTaskFailed,
			Attributes: &history.ActivityTaskFailedAttributes{ScheduledEventID: scheduledID, Failure: lastFailure},
		})
	}
	return events
}

func (s *Simulator) executeChildWorkflow(initiatedID int64, attrs *history.StartChildWorkflowExecutionInitiatedAttributes) []*history.HistoryEvent {
	events := []*history.HistoryEvent{{
		EventID: s.nextEventID(), EventType: history.EventTypeChildWorkflowExecutionStarted,
		Attributes: &history.ChildWorkflowExecutionStartedAttributes{
			InitiatedEventID: initiatedID, WorkflowID: attrs.WorkflowID, RunID: "simulated-child-run",
		},
	}}
	fn, ok := s.childResults[attrs.WorkflowType]
	if !ok {
		fn = func([]byte) ([]byte, error) { return nil, nil }
	}
	result, err := fn(attrs.Input)
	if err == nil {
		events = append(events, &history.HistoryEvent{
			EventID: s.nextEventID(), EventType: history.EventTypeChildWorkflowExecutionCompleted,
			Attributes: &history.ChildWorkflowExecutionCompletedAttributes{InitiatedEventID: initiatedID, Result: result},
		})
	} else {
		events = append(events, &history.HistoryEvent{
			EventID: s.nextEventID(), EventType: history.EventTypeChildWorkflowExecutionFailed,
			Attributes: &history.ChildWorkflowExecutionFailedAttributes{
				InitiatedEventID: initiatedID, Failure: coordinator.FailureFromError(err),
			},
		})
	}
	return events
}

func (s *Simulator) dispatchLocalActivities() error {
	for _, params := range s.coord.DrainLocalActivities() {
		fn, ok := s.localActivities[params.ActivityType]
		if !ok {
			return fmt.Errorf("no local activity registered for type %s", params.ActivityType)
		}
		s.invocations[params.ActivityType]++
		result, err := fn(params.Input)
		var failure *history.Failure
		if err != nil {
			failure = coordinator.FailureFromError(err)
		}
		if err := s.coord.HandleLocalActivityCompletion(params.ActivityID, result, failure, params.Attempt, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) injectOne() []*history.HistoryEvent {
	if len(s.injected) == 0 {
		return nil
	}
	inj := s.injected[0]
	s.injected = s.injected[1:]
	if inj.cancel {
		return []*history.HistoryEvent{{
			EventID: s.nextEventID(), EventType: history.EventTypeWorkflowExecutionCancelRequested,
			Attributes: &history.WorkflowExecutionCancelRequestedAttributes{Cause: "external cancel"},
		}}
	}
	return []*history.HistoryEvent{{
		EventID: s.nextEventID(), EventType: history.EventTypeWorkflowExecutionSignaled,
		Attributes: &history.WorkflowExecutionSignaledAttributes{SignalName: inj.signalName, Input: inj.input},
	}}
}

// fireNextTimer advances simulated time to the earliest pending timer
// deadline — waiting for the gate's wall-clock wakeup first in realtime
// mode — and returns its TIMER_FIRED event.
func (s *Simulator) fireNextTimer() ([]*history.HistoryEvent, error) {
	if len(s.pendingTimers) == 0 {
		return nil, nil
	}

	var due pendingTimer
	if s.gate != nil {
		fire, ok := <-s.gate.FireChan()
		if !ok {
			return nil, fmt.Errorf("timer gate closed with %d timers pending", len(s.pendingTimers))
		}
		found := false
		kept := s.pendingTimers[:0]
		for _, t := range s.pendingTimers {
			if !found && t.timerID == fire.TimerID && t.startedEventID == fire.StartedEventID {
				due = t
				found = true
				continue
			}
			kept = append(kept, t)
		}
		s.pendingTimers = kept
		if !found {
			return nil, fmt.Errorf("timer gate fired unknown timerId=%s", fire.TimerID)
		}
		s.logger.Debug("timer fired", tag.TimerID(due.timerID))
	} else {
		earliest := 0
		for i, t := range s.pendingTimers {
			if t.fireAtMillis < s.pendingTimers[earliest].fireAtMillis {
				earliest = i
			}
		}
		due = s.pendingTimers[earliest]
		s.pendingTimers = append(s.pendingTimers[:earliest], s.pendingTimers[earliest+1:]...)
	}
	if due.fireAtMillis > s.nowMillis {
		s.nowMillis = due.fireAtMillis
	}

	return []*history.HistoryEvent{{
		EventID: s.nextEventID(), EventType: history.EventTypeTimerFired,
		Attributes: &history.TimerFiredAttributes{TimerID: due.timerID, StartedEventID: due.startedEventID},
	}}, nil
}
