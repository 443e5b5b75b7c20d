// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package fixture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdblab/wfreplay/internal/history"
)

const timerFixture = `
runId: run-1
previousStartedEventId: 7
workflowTaskStartedEventId: 7
events:
  - eventId: 1
    eventType: WorkflowExecutionStarted
    workflowId: wf-1
    workflowType: timer-only
    runId: run-1
  - eventId: 2
    eventType: WorkflowTaskScheduled
  - eventId: 3
    eventType: WorkflowTaskStarted
    currentTimeMillis: 1000
  - eventId: 4
    eventType: WorkflowTaskCompleted
  - eventId: 5
    eventType: TimerStarted
    timerId: "1"
    duration: 5s
  - eventId: 6
    eventType: MarkerRecorded
    marker:
      name: Version
      changeId: change-1
      version: 2
  - eventId: 7
    eventType: TimerFired
    timerId: "1"
    startedEventId: 5
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAndConvert(t *testing.T) {
	f, err := Load(writeFixture(t, timerFixture))
	require.NoError(t, err)
	assert.Equal(t, "run-1", f.RunID)
	assert.Equal(t, int64(7), f.PreviousStartedEventID)

	events, err := f.HistoryEvents()
	require.NoError(t, err)
	require.Len(t, events, 7)

	startedAttrs, ok := events[0].Attributes.(*history.WorkflowExecutionStartedAttributes)
	require.True(t, ok)
	assert.Equal(t, "wf-1", startedAttrs.WorkflowID)

	taskStarted, ok := events[2].Attributes.(*history.WorkflowTaskStartedAttributes)
	require.True(t, ok)
	assert.Equal(t, int64(1000), taskStarted.CurrentTimeMillis)

	timerAttrs, ok := events[4].Attributes.(*history.TimerStartedAttributes)
	require.True(t, ok)
	assert.Equal(t, "1", timerAttrs.TimerID)
	assert.Equal(t, 5*time.Second, timerAttrs.Duration)

	markerAttrs, ok := events[5].Attributes.(*history.MarkerRecordedAttributes)
	require.True(t, ok)
	assert.Equal(t, history.MarkerNameVersion, markerAttrs.MarkerName)
	details, ok := markerAttrs.Details["details"].(*history.VersionMarkerDetails)
	require.True(t, ok)
	assert.Equal(t, "change-1", details.ChangeID)
	assert.Equal(t, int32(2), details.Version)

	firedAttrs, ok := events[6].Attributes.(*history.TimerFiredAttributes)
	require.True(t, ok)
	assert.Equal(t, int64(5), firedAttrs.StartedEventID)
}

func TestUnknownEventTypeIsRejected(t *testing.T) {
	f, err := Load(writeFixture(t, `
events:
  - eventId: 1
    eventType: NoSuchEvent
`))
	require.NoError(t, err)
	_, err = f.HistoryEvents()
	assert.Error(t, err)
}

func TestMarkerWithoutDetailsIsRejected(t *testing.T) {
	f, err := Load(writeFixture(t, `
events:
  - eventId: 1
    eventType: MarkerRecorded
`))
	require.NoError(t, err)
	_, err = f.HistoryEvents()
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
