// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package history

// CommandType enumerates every Command kind the coordinator can emit. It
// mirrors EventType's initiating events plus the marker/lifecycle commands
// that never get a dedicated "scheduled" event of their own.
type CommandType int

const (
	CommandTypeUnspecified CommandType = iota

	CommandTypeScheduleActivityTask
	CommandTypeRequestCancelActivityTask

	CommandTypeStartTimer
	CommandTypeCancelTimer

	CommandTypeStartChildWorkflowExecution
	CommandTypeRequestCancelExternalWorkflowExecution
	CommandTypeSignalExternalWorkflowExecution

	CommandTypeRecordMarker
	CommandTypeUpsertWorkflowSearchAttributes

	CommandTypeCompleteWorkflowExecution
	CommandTypeFailWorkflowExecution
	CommandTypeCancelWorkflowExecution
	CommandTypeContinueAsNewWorkflowExecution
)

func (t CommandType) String() string {
	switch t {
	case CommandTypeScheduleActivityTask:
		return "ScheduleActivityTask"
	case CommandTypeRequestCancelActivityTask:
		return "RequestCancelActivityTask"
	case CommandTypeStartTimer:
		return "StartTimer"
	case CommandTypeCancelTimer:
		return "CancelTimer"
	case CommandTypeStartChildWorkflowExecution:
		return "StartChildWorkflowExecution"
	case CommandTypeRequestCancelExternalWorkflowExecution:
		return "RequestCancelExternalWorkflowExecution"
	case CommandTypeSignalExternalWorkflowExecution:
		return "SignalExternalWorkflowExecution"
	case CommandTypeRecordMarker:
		return "RecordMarker"
	case CommandTypeUpsertWorkflowSearchAttributes:
		return "UpsertWorkflowSearchAttributes"
	case CommandTypeCompleteWorkflowExecution:
		return "CompleteWorkflowExecution"
	case CommandTypeFailWorkflowExecution:
		return "FailWorkflowExecution"
	case CommandTypeCancelWorkflowExecution:
		return "CancelWorkflowExecution"
	case CommandTypeContinueAsNewWorkflowExecution:
		return "ContinueAsNewWorkflowExecution"
	default:
		return "Unspecified"
	}
}

// ExpectedEventType returns the event type that must be produced in history
// once this command is accepted by the service. Marker commands have no
// "scheduled" echo distinct from MarkerRecorded itself.
func (t CommandType) ExpectedEventType() EventType {
	switch t {
	case CommandTypeScheduleActivityTask:
		return EventTypeActivityTaskScheduled
	case CommandTypeRequestCancelActivityTask:
		return EventTypeActivityTaskCancelRequested
	case CommandTypeStartTimer:
		return EventTypeTimerStarted
	case CommandTypeCancelTimer:
		return EventTypeTimerCanceled
	case CommandTypeStartChildWorkflowExecution:
		return EventTypeStartChildWorkflowExecutionInitiated
	case CommandTypeRequestCancelExternalWorkflowExecution:
		return EventTypeRequestCancelExternalWorkflowExecutionInitiated
	case CommandTypeSignalExternalWorkflowExecution:
		return EventTypeSignalExternalWorkflowExecutionInitiated
	case CommandTypeRecordMarker:
		return EventTypeMarkerRecorded
	case CommandTypeUpsertWorkflowSearchAttributes:
		return EventTypeUpsertWorkflowSearchAttributes
	case CommandTypeCompleteWorkflowExecution:
		return EventTypeWorkflowExecutionCompleted
	case CommandTypeFailWorkflowExecution:
		return EventTypeWorkflowExecutionFailed
	case CommandTypeCancelWorkflowExecution:
		return EventTypeWorkflowExecutionCanceled
	case CommandTypeContinueAsNewWorkflowExecution:
		return EventTypeWorkflowExecutionContinuedAsNew
	default:
		return EventTypeUnspecified
	}
}

// IsMarker reports whether this command type is a RECORD_MARKER command,
// which never consumes queue position the way other commands do (see
// CancellableCommand.IsMarker).
func (t CommandType) IsMarker() bool {
	return t == CommandTypeRecordMarker
}

// Command is a structured message the coordinator emits to the transport.
// Every non-marker command later produces exactly one matching command event
// in history.
type Command struct {
	CommandType CommandType
	Attributes  any
}

// MatchesEvent reports whether this command's declared attributes agree,
// field for field, with the event attributes the service recorded for it.
// This is the determinism cross-check of spec section 4.D.5: activityID,
// activityType, workflowID, workflowType and timerID must match byte-for-byte.
func (c *Command) MatchesEvent(e *HistoryEvent) bool {
	if c.CommandType.ExpectedEventType() != e.EventType {
		return false
	}
	switch cmdAttr := c.Attributes.(type) {
	case *ActivityTaskScheduledAttributes:
		evtAttr, ok := e.Attributes.(*ActivityTaskScheduledAttributes)
		return ok && cmdAttr.ActivityID == evtAttr.ActivityID && cmdAttr.ActivityType == evtAttr.ActivityType
	case *ActivityTaskCancelRequestedAttributes:
		evtAttr, ok := e.Attributes.(*ActivityTaskCancelRequestedAttributes)
		return ok && cmdAttr.ActivityID == evtAttr.ActivityID
	case *TimerStartedAttributes:
		evtAttr, ok := e.Attributes.(*TimerStartedAttributes)
		return ok && cmdAttr.TimerID == evtAttr.TimerID
	case *TimerCanceledAttributes:
		evtAttr, ok := e.Attributes.(*TimerCanceledAttributes)
		return ok && cmdAttr.TimerID == evtAttr.TimerID
	case *StartChildWorkflowExecutionInitiatedAttributes:
		evtAttr, ok := e.Attributes.(*StartChildWorkflowExecutionInitiatedAttributes)
		return ok && cmdAttr.WorkflowID == evtAttr.WorkflowID && cmdAttr.WorkflowType == evtAttr.WorkflowType
	case *RequestCancelExternalWorkflowExecutionInitiatedAttributes:
		evtAttr, ok := e.Attributes.(*RequestCancelExternalWorkflowExecutionInitiatedAttributes)
		return ok && cmdAttr.WorkflowID == evtAttr.WorkflowID
	case *SignalExternalWorkflowExecutionInitiatedAttributes:
		evtAttr, ok := e.Attributes.(*SignalExternalWorkflowExecutionInitiatedAttributes)
		return ok && cmdAttr.WorkflowID == evtAttr.WorkflowID && cmdAttr.SignalName == evtAttr.SignalName
	default:
		// Marker and workflow-lifecycle commands carry no identifier that
		// must round-trip byte-for-byte; matching the event type is enough.
		return true
	}
}
