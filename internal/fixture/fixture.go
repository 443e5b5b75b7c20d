// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package fixture loads serialized workflow histories from YAML files so
// the replay harness can drive a coordinator without a live service
// connection. The format is deliberately flat and hand-editable: one entry
// per event, attributes inlined per event type.
package fixture

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xdblab/wfreplay/internal/history"
)

// Duration decodes either a Go duration string ("5s", "1h30m") or a plain
// integer nanosecond count, so fixtures stay hand-editable.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string or integer nanoseconds: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Fixture is the on-disk shape of one replayable history.
type Fixture struct {
	RunID                      string  `yaml:"runId"`
	PreviousStartedEventID     int64   `yaml:"previousStartedEventId"`
	WorkflowTaskStartedEventID int64   `yaml:"workflowTaskStartedEventId"`
	Events                     []Event `yaml:"events"`
}

// Event is one history event entry. Only the attribute fields relevant to
// its EventType are read; the rest stay zero.
type Event struct {
	EventID   int64  `yaml:"eventId"`
	EventType string `yaml:"eventType"`

	// identifiers and payloads, shared across event types
	WorkflowID       string        `yaml:"workflowId,omitempty"`
	WorkflowType     string        `yaml:"workflowType,omitempty"`
	RunID            string        `yaml:"runId,omitempty"`
	ActivityID       string        `yaml:"activityId,omitempty"`
	ActivityType     string        `yaml:"activityType,omitempty"`
	TimerID          string        `yaml:"timerId,omitempty"`
	SignalName       string        `yaml:"signalName,omitempty"`
	Input            string        `yaml:"input,omitempty"`
	Result           string        `yaml:"result,omitempty"`
	Details          string        `yaml:"details,omitempty"`
	Duration         Duration      `yaml:"duration,omitempty"`
	TimeoutType      string        `yaml:"timeoutType,omitempty"`
	Attempt          int32         `yaml:"attempt,omitempty"`
	CurrentTimeMillis int64        `yaml:"currentTimeMillis,omitempty"`

	// references to the initiating event
	ScheduledEventID int64 `yaml:"scheduledEventId,omitempty"`
	StartedEventID   int64 `yaml:"startedEventId,omitempty"`
	InitiatedEventID int64 `yaml:"initiatedEventId,omitempty"`

	Failure *Failure `yaml:"failure,omitempty"`
	Marker  *Marker  `yaml:"marker,omitempty"`
}

// Failure mirrors history.Failure for YAML decoding.
type Failure struct {
	Type         string `yaml:"type"`
	Message      string `yaml:"message,omitempty"`
	Details      string `yaml:"details,omitempty"`
	NonRetryable bool   `yaml:"nonRetryable,omitempty"`
}

// Marker is the flattened details payload of a MarkerRecorded event; Name
// selects which of the remaining fields are read.
type Marker struct {
	Name             string        `yaml:"name"`
	SideEffectID     int64         `yaml:"sideEffectId,omitempty"`
	ID               string        `yaml:"id,omitempty"`
	ChangeID         string        `yaml:"changeId,omitempty"`
	Version          int32         `yaml:"version,omitempty"`
	Result           string        `yaml:"result,omitempty"`
	ActivityID       string        `yaml:"activityId,omitempty"`
	ActivityType     string        `yaml:"activityType,omitempty"`
	Failure          *Failure      `yaml:"failure,omitempty"`
	ReplayTimeMillis int64         `yaml:"replayTimeMillis,omitempty"`
	Attempt          int32         `yaml:"attempt,omitempty"`
	Backoff          Duration      `yaml:"backoff,omitempty"`
}

// Load reads and decodes a fixture file.
func Load(path string) (*Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f := &Fixture{}
	d := yaml.NewDecoder(file)
	if err := d.Decode(f); err != nil {
		return nil, err
	}
	return f, nil
}

// HistoryEvents converts the fixture entries into the coordinator's wire
// model, validating each event type.
func (f *Fixture) HistoryEvents() ([]*history.HistoryEvent, error) {
	events := make([]*history.HistoryEvent, 0, len(f.Events))
	for i := range f.Events {
		e := &f.Events[i]
		converted, err := e.toHistoryEvent()
		if err != nil {
			return nil, fmt.Errorf("fixture event %d (eventId=%d): %w", i, e.EventID, err)
		}
		events = append(events, converted)
	}
	return events, nil
}

func (e *Event) toHistoryEvent() (*history.HistoryEvent, error) {
	eventType, ok := eventTypeByName[e.EventType]
	if !ok {
		return nil, fmt.Errorf("unknown eventType %q", e.EventType)
	}
	attrs, err := e.toAttributes(eventType)
	if err != nil {
		return nil, err
	}
	return &history.HistoryEvent{
		EventID:    e.EventID,
		EventType:  eventType,
		Attributes: attrs,
	}, nil
}

func (e *Event) toAttributes(t history.EventType) (any, error) {
	switch t {
	case history.EventTypeWorkflowExecutionStarted:
		return &history.WorkflowExecutionStartedAttributes{
			WorkflowID: e.WorkflowID, WorkflowType: e.WorkflowType, RunID: e.RunID, Input: bytesOf(e.Input),
		}, nil
	case history.EventTypeWorkflowExecutionCompleted:
		return &history.WorkflowExecutionCompletedAttributes{Result: bytesOf(e.Result)}, nil
	case history.EventTypeWorkflowExecutionFailed:
		return &history.WorkflowExecutionFailedAttributes{Failure: e.Failure.toHistory()}, nil
	case history.EventTypeWorkflowExecutionCanceled:
		return &history.WorkflowExecutionCanceledAttributes{Details: bytesOf(e.Details)}, nil
	case history.EventTypeWorkflowExecutionTimedOut:
		return &history.WorkflowExecutionTimedOutAttributes{TimeoutType: e.TimeoutType}, nil
	case history.EventTypeWorkflowExecutionContinuedAsNew:
		return &history.WorkflowExecutionContinuedAsNewAttributes{
			NewRunID: e.RunID, WorkflowType: e.WorkflowType, Input: bytesOf(e.Input),
		}, nil
	case history.EventTypeWorkflowExecutionSignaled:
		return &history.WorkflowExecutionSignaledAttributes{SignalName: e.SignalName, Input: bytesOf(e.Input)}, nil
	case history.EventTypeWorkflowExecutionCancelRequested:
		return &history.WorkflowExecutionCancelRequestedAttributes{Cause: e.Details}, nil
	case history.EventTypeWorkflowExecutionTerminated:
		return nil, nil

	case history.EventTypeWorkflowTaskScheduled,
		history.EventTypeWorkflowTaskCompleted,
		history.EventTypeWorkflowTaskFailed,
		history.EventTypeWorkflowTaskTimedOut:
		return nil, nil
	case history.EventTypeWorkflowTaskStarted:
		return &history.WorkflowTaskStartedAttributes{CurrentTimeMillis: e.CurrentTimeMillis}, nil

	case history.EventTypeActivityTaskScheduled:
		return &history.ActivityTaskScheduledAttributes{
			ActivityID: e.ActivityID, ActivityType: e.ActivityType, Input: bytesOf(e.Input),
		}, nil
	case history.EventTypeActivityTaskStarted:
		return &history.ActivityTaskStartedAttributes{ScheduledEventID: e.ScheduledEventID, Attempt: e.Attempt}, nil
	case history.EventTypeActivityTaskCompleted:
		return &history.ActivityTaskCompletedAttributes{ScheduledEventID: e.ScheduledEventID, Result: bytesOf(e.Result)}, nil
	case history.EventTypeActivityTaskFailed:
		return &history.ActivityTaskFailedAttributes{ScheduledEventID: e.ScheduledEventID, Failure: e.Failure.toHistory()}, nil
	case history.EventTypeActivityTaskTimedOut:
		return &history.ActivityTaskTimedOutAttributes{ScheduledEventID: e.ScheduledEventID, TimeoutType: e.TimeoutType}, nil
	case history.EventTypeActivityTaskCancelRequested:
		return &history.ActivityTaskCancelRequestedAttributes{ActivityID: e.ActivityID}, nil
	case history.EventTypeActivityTaskCanceled:
		return &history.ActivityTaskCanceledAttributes{ScheduledEventID: e.ScheduledEventID, Details: bytesOf(e.Details)}, nil

	case history.EventTypeTimerStarted:
		return &history.TimerStartedAttributes{TimerID: e.TimerID, Duration: time.Duration(e.Duration)}, nil
	case history.EventTypeTimerFired:
		return &history.TimerFiredAttributes{TimerID: e.TimerID, StartedEventID: e.StartedEventID}, nil
	case history.EventTypeTimerCanceled:
		return &history.TimerCanceledAttributes{TimerID: e.TimerID, StartedEventID: e.StartedEventID}, nil

	case history.EventTypeStartChildWorkflowExecutionInitiated:
		return &history.StartChildWorkflowExecutionInitiatedAttributes{
			WorkflowID: e.WorkflowID, WorkflowType: e.WorkflowType, Input: bytesOf(e.Input),
		}, nil
	case history.EventTypeChildWorkflowExecutionStarted:
		return &history.ChildWorkflowExecutionStartedAttributes{
			InitiatedEventID: e.InitiatedEventID, WorkflowID: e.WorkflowID, RunID: e.RunID,
		}, nil
	case history.EventTypeChildWorkflowExecutionCompleted:
		return &history.ChildWorkflowExecutionCompletedAttributes{InitiatedEventID: e.InitiatedEventID, Result: bytesOf(e.Result)}, nil
	case history.EventTypeChildWorkflowExecutionFailed:
		return &history.ChildWorkflowExecutionFailedAttributes{InitiatedEventID: e.InitiatedEventID, Failure: e.Failure.toHistory()}, nil
	case history.EventTypeChildWorkflowExecutionCanceled:
		return &history.ChildWorkflowExecutionCanceledAttributes{InitiatedEventID: e.InitiatedEventID, Details: bytesOf(e.Details)}, nil
	case history.EventTypeChildWorkflowExecutionTimedOut:
		return &history.ChildWorkflowExecutionTimedOutAttributes{InitiatedEventID: e.InitiatedEventID}, nil
	case history.EventTypeChildWorkflowExecutionTerminated:
		return &history.ChildWorkflowExecutionTerminatedAttributes{InitiatedEventID: e.InitiatedEventID}, nil

	case history.EventTypeSignalExternalWorkflowExecutionInitiated:
		return &history.SignalExternalWorkflowExecutionInitiatedAttributes{
			WorkflowID: e.WorkflowID, RunID: e.RunID, SignalName: e.SignalName, Input: bytesOf(e.Input),
		}, nil
	case history.EventTypeExternalWorkflowExecutionSignaled:
		return &history.ExternalWorkflowExecutionSignaledAttributes{InitiatedEventID: e.InitiatedEventID}, nil
	case history.EventTypeSignalExternalWorkflowExecutionFailed:
		return &history.SignalExternalWorkflowExecutionFailedAttributes{InitiatedEventID: e.InitiatedEventID, Failure: e.Failure.toHistory()}, nil

	case history.EventTypeRequestCancelExternalWorkflowExecutionInitiated:
		return &history.RequestCancelExternalWorkflowExecutionInitiatedAttributes{
			WorkflowID: e.WorkflowID, RunID: e.RunID,
		}, nil
	case history.EventTypeExternalWorkflowExecutionCancelRequested:
		return &history.ExternalWorkflowExecutionCancelRequestedAttributes{InitiatedEventID: e.InitiatedEventID}, nil
	case history.EventTypeRequestCancelExternalWorkflowExecutionFailed:
		return &history.RequestCancelExternalWorkflowExecutionFailedAttributes{InitiatedEventID: e.InitiatedEventID, Failure: e.Failure.toHistory()}, nil

	case history.EventTypeMarkerRecorded:
		return e.markerAttributes()
	case history.EventTypeUpsertWorkflowSearchAttributes:
		return &history.UpsertWorkflowSearchAttributesAttributes{}, nil
	default:
		return nil, fmt.Errorf("eventType %q is not supported by fixtures", e.EventType)
	}
}

func (e *Event) markerAttributes() (any, error) {
	if e.Marker == nil {
		return nil, fmt.Errorf("MarkerRecorded event requires a marker block")
	}
	m := e.Marker
	var details any
	switch m.Name {
	case history.MarkerNameSideEffect:
		details = &history.SideEffectMarkerDetails{SideEffectID: m.SideEffectID, Result: bytesOf(m.Result)}
	case history.MarkerNameMutableSideEffect:
		details = &history.MutableSideEffectMarkerDetails{ID: m.ID, Result: bytesOf(m.Result)}
	case history.MarkerNameVersion:
		details = &history.VersionMarkerDetails{ChangeID: m.ChangeID, Version: m.Version}
	case history.MarkerNameLocalActivity:
		details = &history.LocalActivityMarkerDetails{
			ActivityID:       m.ActivityID,
			ActivityType:     m.ActivityType,
			Result:           bytesOf(m.Result),
			Failure:          m.Failure.toHistory(),
			ReplayTimeMillis: m.ReplayTimeMillis,
			Attempt:          m.Attempt,
			Backoff:          time.Duration(m.Backoff),
		}
	default:
		return nil, fmt.Errorf("unknown marker name %q", m.Name)
	}
	return &history.MarkerRecordedAttributes{
		MarkerName: m.Name,
		Details:    map[string]any{"details": details},
	}, nil
}

func (f *Failure) toHistory() *history.Failure {
	if f == nil {
		return nil
	}
	return &history.Failure{
		Type:         f.Type,
		Message:      f.Message,
		Details:      bytesOf(f.Details),
		NonRetryable: f.NonRetryable,
	}
}

func bytesOf(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

var eventTypeByName = buildEventTypeIndex()

func buildEventTypeIndex() map[string]history.EventType {
	index := make(map[string]history.EventType)
	for t := history.EventTypeWorkflowExecutionStarted; t <= history.EventTypeUpsertWorkflowSearchAttributes; t++ {
		index[t.String()] = t
	}
	return index
}
