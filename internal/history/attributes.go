// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package history

import "time"

// CancellationType governs whether and when cancelling an in-flight
// activity/child-workflow emits a cancel command and how that interacts with
// the owner's completion callback.
type CancellationType int

const (
	CancellationTypeTryCancel CancellationType = iota
	CancellationTypeWaitCancellationCompleted
	CancellationTypeWaitCancellationRequested
	CancellationTypeAbandon
)

// --- Activity ---

type ActivityTaskScheduledAttributes struct {
	ActivityID         string
	ActivityType       string
	Input              []byte
	ScheduleToCloseTimeout time.Duration
	StartToCloseTimeout    time.Duration
	HeartbeatTimeout       time.Duration
	RetryPolicy            *RetryPolicy
}

type ActivityTaskStartedAttributes struct {
	ScheduledEventID int64
	Attempt          int32
}

type ActivityTaskCompletedAttributes struct {
	ScheduledEventID int64
	Result           []byte
}

type ActivityTaskFailedAttributes struct {
	ScheduledEventID int64
	Failure          *Failure
}

type ActivityTaskTimedOutAttributes struct {
	ScheduledEventID int64
	TimeoutType      string
}

type ActivityTaskCancelRequestedAttributes struct {
	ActivityID string
}

type ActivityTaskCanceledAttributes struct {
	ScheduledEventID int64
	Details          []byte
}

type RetryPolicy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int32
	DoNotRetry         []string
}

// --- Timer ---

type TimerStartedAttributes struct {
	TimerID string
	Duration time.Duration
}

type TimerFiredAttributes struct {
	TimerID        string
	StartedEventID int64
}

type TimerCanceledAttributes struct {
	TimerID        string
	StartedEventID int64
}

// --- Child workflow ---

type StartChildWorkflowExecutionInitiatedAttributes struct {
	WorkflowID       string
	WorkflowType     string
	Input            []byte
	CancellationType CancellationType
}

type ChildWorkflowExecutionStartedAttributes struct {
	InitiatedEventID int64
	WorkflowID       string
	RunID            string
}

type ChildWorkflowExecutionCompletedAttributes struct {
	InitiatedEventID int64
	Result           []byte
}

type ChildWorkflowExecutionFailedAttributes struct {
	InitiatedEventID int64
	Failure          *Failure
}

type ChildWorkflowExecutionCanceledAttributes struct {
	InitiatedEventID int64
	Details          []byte
}

type ChildWorkflowExecutionTimedOutAttributes struct {
	InitiatedEventID int64
}

type ChildWorkflowExecutionTerminatedAttributes struct {
	InitiatedEventID int64
}

// --- Signal / cancel external ---

type SignalExternalWorkflowExecutionInitiatedAttributes struct {
	WorkflowID string
	RunID      string
	SignalName string
	Input      []byte
}

type ExternalWorkflowExecutionSignaledAttributes struct {
	InitiatedEventID int64
}

type SignalExternalWorkflowExecutionFailedAttributes struct {
	InitiatedEventID int64
	Failure          *Failure
}

type RequestCancelExternalWorkflowExecutionInitiatedAttributes struct {
	WorkflowID       string
	RunID            string
	ChildWorkflowOnly bool
}

type ExternalWorkflowExecutionCancelRequestedAttributes struct {
	InitiatedEventID int64
}

type RequestCancelExternalWorkflowExecutionFailedAttributes struct {
	InitiatedEventID int64
	Failure          *Failure
}

// --- Marker (SideEffect / MutableSideEffect / Version / LocalActivity) ---

const (
	// MarkerNameSideEffect, MarkerNameMutableSideEffect, MarkerNameVersion and
	// MarkerNameLocalActivity are the reserved marker-name values carried on
	// MarkerRecordedAttributes.MarkerName, matching the bit-exact taxonomy in
	// spec section 6.
	MarkerNameSideEffect        = "SideEffect"
	MarkerNameMutableSideEffect = "MutableSideEffect"
	MarkerNameVersion           = "Version"
	MarkerNameLocalActivity     = "LocalActivity"
)

type MarkerRecordedAttributes struct {
	MarkerName string
	Details    map[string]any
}

// SideEffectMarkerDetails is the Details shape for MarkerNameSideEffect.
type SideEffectMarkerDetails struct {
	SideEffectID int64
	Result       []byte
}

// MutableSideEffectMarkerDetails is the Details shape for MarkerNameMutableSideEffect.
type MutableSideEffectMarkerDetails struct {
	ID     string
	Result []byte
}

// VersionMarkerDetails is the Details shape for MarkerNameVersion.
type VersionMarkerDetails struct {
	ChangeID string
	Version  int32
}

// LocalActivityMarkerDetails is the Details shape for MarkerNameLocalActivity,
// carrying the bit-exact field names from spec section 6.
type LocalActivityMarkerDetails struct {
	ActivityID       string
	ActivityType     string
	Result           []byte
	Failure          *Failure
	ReplayTimeMillis int64
	Attempt          int32
	Backoff          time.Duration
}

// --- Workflow lifecycle ---

type UpsertWorkflowSearchAttributesAttributes struct {
	SearchAttributes map[string]any
}

type WorkflowExecutionStartedAttributes struct {
	WorkflowID   string
	WorkflowType string
	RunID        string
	Input        []byte
}

type WorkflowExecutionCompletedAttributes struct {
	Result []byte
}

type WorkflowExecutionFailedAttributes struct {
	Failure *Failure
}

type WorkflowExecutionCanceledAttributes struct {
	Details []byte
}

type WorkflowExecutionContinuedAsNewAttributes struct {
	NewRunID     string
	WorkflowType string
	Input        []byte
}

type WorkflowExecutionSignaledAttributes struct {
	SignalName string
	Input      []byte
}

type WorkflowExecutionCancelRequestedAttributes struct {
	Cause string
}

type WorkflowExecutionTimedOutAttributes struct {
	TimeoutType string
}

type WorkflowTaskStartedAttributes struct {
	CurrentTimeMillis int64
}

// Failure is the carrier for ApplicationFailure-shaped data attached to
// events (see internal/workflowerror for the typed error it round-trips
// through).
type Failure struct {
	Type         string
	Message      string
	Details      []byte
	NonRetryable bool
}
