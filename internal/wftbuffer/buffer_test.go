// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package wftbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdblab/wfreplay/internal/history"
)

func ev(id int64, t history.EventType) *history.HistoryEvent {
	return &history.HistoryEvent{EventID: id, EventType: t}
}

func TestBatchIncludesTrailingCommandEvents(t *testing.T) {
	b := NewWFTBuffer()

	// task 1: lead-in, scheduled, started, completed, then the command
	// events its commands produced
	assert.False(t, b.AddEvent(ev(1, history.EventTypeWorkflowExecutionStarted), true))
	assert.False(t, b.AddEvent(ev(2, history.EventTypeWorkflowTaskScheduled), true))
	assert.False(t, b.AddEvent(ev(3, history.EventTypeWorkflowTaskStarted), true))
	assert.False(t, b.AddEvent(ev(4, history.EventTypeWorkflowTaskCompleted), true))
	assert.False(t, b.AddEvent(ev(5, history.EventTypeMarkerRecorded), true))
	assert.False(t, b.AddEvent(ev(6, history.EventTypeTimerStarted), true))

	// the first non-command event after the completion opens the next batch
	assert.True(t, b.AddEvent(ev(7, history.EventTypeTimerFired), true))
	require.True(t, b.HasBatch())
	batch := b.Fetch()
	require.Len(t, batch, 6)
	assert.Equal(t, int64(1), batch[0].EventID)
	assert.Equal(t, int64(6), batch[5].EventID)
	assert.False(t, b.HasBatch())

	// stream end force-closes the pending tail
	assert.False(t, b.AddEvent(ev(8, history.EventTypeWorkflowTaskScheduled), true))
	assert.True(t, b.AddEvent(ev(9, history.EventTypeWorkflowTaskStarted), false))
	batch = b.Fetch()
	require.Len(t, batch, 3)
	assert.Equal(t, int64(7), batch[0].EventID)
	assert.Equal(t, int64(9), batch[2].EventID)
}

func TestFailedTaskClosesBatchImmediately(t *testing.T) {
	b := NewWFTBuffer()
	assert.False(t, b.AddEvent(ev(1, history.EventTypeWorkflowTaskScheduled), true))
	assert.False(t, b.AddEvent(ev(2, history.EventTypeWorkflowTaskStarted), true))
	assert.True(t, b.AddEvent(ev(3, history.EventTypeWorkflowTaskFailed), true))
	batch := b.Fetch()
	require.Len(t, batch, 3)
}

func TestFetchOnEmptyBufferReturnsNil(t *testing.T) {
	b := NewWFTBuffer()
	assert.False(t, b.HasBatch())
	assert.Nil(t, b.Fetch())
}
