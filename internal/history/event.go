// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package history defines the wire-level data model replayed by the coordinator:
// HistoryEvent and Command, their type taxonomies, and the attribute payloads
// each type carries. Only one Attributes field is populated per event/command,
// matching the oneof shape the transport's wire encoding would produce.
package history

// EventType enumerates every HistoryEvent kind the coordinator must recognise.
type EventType int

const (
	EventTypeUnspecified EventType = iota

	EventTypeWorkflowExecutionStarted
	EventTypeWorkflowExecutionCompleted
	EventTypeWorkflowExecutionFailed
	EventTypeWorkflowExecutionTimedOut
	EventTypeWorkflowExecutionCanceled
	EventTypeWorkflowExecutionTerminated
	EventTypeWorkflowExecutionContinuedAsNew
	EventTypeWorkflowExecutionSignaled
	EventTypeWorkflowExecutionCancelRequested

	EventTypeWorkflowTaskScheduled
	EventTypeWorkflowTaskStarted
	EventTypeWorkflowTaskCompleted
	EventTypeWorkflowTaskFailed
	EventTypeWorkflowTaskTimedOut

	EventTypeActivityTaskScheduled
	EventTypeActivityTaskStarted
	EventTypeActivityTaskCompleted
	EventTypeActivityTaskFailed
	EventTypeActivityTaskTimedOut
	EventTypeActivityTaskCancelRequested
	EventTypeActivityTaskCanceled

	EventTypeTimerStarted
	EventTypeTimerFired
	EventTypeTimerCanceled

	EventTypeStartChildWorkflowExecutionInitiated
	EventTypeChildWorkflowExecutionStarted
	EventTypeChildWorkflowExecutionCompleted
	EventTypeChildWorkflowExecutionFailed
	EventTypeChildWorkflowExecutionCanceled
	EventTypeChildWorkflowExecutionTimedOut
	EventTypeChildWorkflowExecutionTerminated

	EventTypeSignalExternalWorkflowExecutionInitiated
	EventTypeExternalWorkflowExecutionSignaled
	EventTypeSignalExternalWorkflowExecutionFailed

	EventTypeRequestCancelExternalWorkflowExecutionInitiated
	EventTypeExternalWorkflowExecutionCancelRequested
	EventTypeRequestCancelExternalWorkflowExecutionFailed

	EventTypeMarkerRecorded
	EventTypeUpsertWorkflowSearchAttributes
)

func (t EventType) String() string {
	switch t {
	case EventTypeWorkflowExecutionStarted:
		return "WorkflowExecutionStarted"
	case EventTypeWorkflowExecutionCompleted:
		return "WorkflowExecutionCompleted"
	case EventTypeWorkflowExecutionFailed:
		return "WorkflowExecutionFailed"
	case EventTypeWorkflowExecutionTimedOut:
		return "WorkflowExecutionTimedOut"
	case EventTypeWorkflowExecutionCanceled:
		return "WorkflowExecutionCanceled"
	case EventTypeWorkflowExecutionTerminated:
		return "WorkflowExecutionTerminated"
	case EventTypeWorkflowExecutionContinuedAsNew:
		return "WorkflowExecutionContinuedAsNew"
	case EventTypeWorkflowExecutionSignaled:
		return "WorkflowExecutionSignaled"
	case EventTypeWorkflowExecutionCancelRequested:
		return "WorkflowExecutionCancelRequested"
	case EventTypeWorkflowTaskScheduled:
		return "WorkflowTaskScheduled"
	case EventTypeWorkflowTaskStarted:
		return "WorkflowTaskStarted"
	case EventTypeWorkflowTaskCompleted:
		return "WorkflowTaskCompleted"
	case EventTypeWorkflowTaskFailed:
		return "WorkflowTaskFailed"
	case EventTypeWorkflowTaskTimedOut:
		return "WorkflowTaskTimedOut"
	case EventTypeActivityTaskScheduled:
		return "ActivityTaskScheduled"
	case EventTypeActivityTaskStarted:
		return "ActivityTaskStarted"
	case EventTypeActivityTaskCompleted:
		return "ActivityTaskCompleted"
	case EventTypeActivityTaskFailed:
		return "ActivityTaskFailed"
	case EventTypeActivityTaskTimedOut:
		return "ActivityTaskTimedOut"
	case EventTypeActivityTaskCancelRequested:
		return "ActivityTaskCancelRequested"
	case EventTypeActivityTaskCanceled:
		return "ActivityTaskCanceled"
	case EventTypeTimerStarted:
		return "TimerStarted"
	case EventTypeTimerFired:
		return "TimerFired"
	case EventTypeTimerCanceled:
		return "TimerCanceled"
	case EventTypeStartChildWorkflowExecutionInitiated:
		return "StartChildWorkflowExecutionInitiated"
	case EventTypeChildWorkflowExecutionStarted:
		return "ChildWorkflowExecutionStarted"
	case EventTypeChildWorkflowExecutionCompleted:
		return "ChildWorkflowExecutionCompleted"
	case EventTypeChildWorkflowExecutionFailed:
		return "ChildWorkflowExecutionFailed"
	case EventTypeChildWorkflowExecutionCanceled:
		return "ChildWorkflowExecutionCanceled"
	case EventTypeChildWorkflowExecutionTimedOut:
		return "ChildWorkflowExecutionTimedOut"
	case EventTypeChildWorkflowExecutionTerminated:
		return "ChildWorkflowExecutionTerminated"
	case EventTypeSignalExternalWorkflowExecutionInitiated:
		return "SignalExternalWorkflowExecutionInitiated"
	case EventTypeExternalWorkflowExecutionSignaled:
		return "ExternalWorkflowExecutionSignaled"
	case EventTypeSignalExternalWorkflowExecutionFailed:
		return "SignalExternalWorkflowExecutionFailed"
	case EventTypeRequestCancelExternalWorkflowExecutionInitiated:
		return "RequestCancelExternalWorkflowExecutionInitiated"
	case EventTypeExternalWorkflowExecutionCancelRequested:
		return "ExternalWorkflowExecutionCancelRequested"
	case EventTypeRequestCancelExternalWorkflowExecutionFailed:
		return "RequestCancelExternalWorkflowExecutionFailed"
	case EventTypeMarkerRecorded:
		return "MarkerRecorded"
	case EventTypeUpsertWorkflowSearchAttributes:
		return "UpsertWorkflowSearchAttributes"
	default:
		return "Unspecified"
	}
}

// IsCommandEvent reports whether this event type is generated by a prior
// command of this workflow, and therefore must align 1-1 with the commands
// queue during dispatch. External events (signals, cancel requests, the
// workflow-task triad) are not command events.
func (t EventType) IsCommandEvent() bool {
	switch t {
	case EventTypeActivityTaskScheduled,
		EventTypeActivityTaskCancelRequested,
		EventTypeTimerStarted,
		EventTypeTimerCanceled,
		EventTypeStartChildWorkflowExecutionInitiated,
		EventTypeSignalExternalWorkflowExecutionInitiated,
		EventTypeRequestCancelExternalWorkflowExecutionInitiated,
		EventTypeMarkerRecorded,
		EventTypeUpsertWorkflowSearchAttributes,
		EventTypeWorkflowExecutionCompleted,
		EventTypeWorkflowExecutionFailed,
		EventTypeWorkflowExecutionCanceled,
		EventTypeWorkflowExecutionContinuedAsNew:
		return true
	default:
		return false
	}
}

// HistoryEvent is an immutable record with a monotonic EventID, an EventType,
// and a type-specific attribute payload held in Attributes.
type HistoryEvent struct {
	EventID   int64
	EventType EventType
	Attributes any
}

// InitiatingEventID returns the scheduled/started/initiated event-id that a
// follow-up event (Started, Completed, Fired, Signaled, ...) carries, used by
// the coordinator to route the event to the owning entity machine. ok is
// false for events that never reference an earlier initiating event.
func (e *HistoryEvent) InitiatingEventID() (id int64, ok bool) {
	switch a := e.Attributes.(type) {
	case *ActivityTaskStartedAttributes:
		return a.ScheduledEventID, true
	case *ActivityTaskCompletedAttributes:
		return a.ScheduledEventID, true
	case *ActivityTaskFailedAttributes:
		return a.ScheduledEventID, true
	case *ActivityTaskTimedOutAttributes:
		return a.ScheduledEventID, true
	case *ActivityTaskCanceledAttributes:
		return a.ScheduledEventID, true
	case *TimerFiredAttributes:
		return a.StartedEventID, true
	case *TimerCanceledAttributes:
		return a.StartedEventID, true
	case *ChildWorkflowExecutionStartedAttributes:
		return a.InitiatedEventID, true
	case *ChildWorkflowExecutionCompletedAttributes:
		return a.InitiatedEventID, true
	case *ChildWorkflowExecutionFailedAttributes:
		return a.InitiatedEventID, true
	case *ChildWorkflowExecutionCanceledAttributes:
		return a.InitiatedEventID, true
	case *ChildWorkflowExecutionTimedOutAttributes:
		return a.InitiatedEventID, true
	case *ChildWorkflowExecutionTerminatedAttributes:
		return a.InitiatedEventID, true
	case *ExternalWorkflowExecutionSignaledAttributes:
		return a.InitiatedEventID, true
	case *SignalExternalWorkflowExecutionFailedAttributes:
		return a.InitiatedEventID, true
	case *ExternalWorkflowExecutionCancelRequestedAttributes:
		return a.InitiatedEventID, true
	case *RequestCancelExternalWorkflowExecutionFailedAttributes:
		return a.InitiatedEventID, true
	default:
		return 0, false
	}
}

// IsMarker reports whether this event carries a RecordMarker payload, the
// shape shared by SideEffect, MutableSideEffect, Version, and LocalActivity
// completions.
func (e *HistoryEvent) IsMarker() bool {
	_, ok := e.Attributes.(*MarkerRecordedAttributes)
	return ok
}
