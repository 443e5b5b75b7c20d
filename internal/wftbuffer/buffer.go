// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package wftbuffer groups a streamed history into workflow-task-sized
// batches. Events arrive one at a time from the transport's gRPC paging;
// the coordinator must see a whole workflow-task attempt at once so that
// marker preloading can scan ahead before any event in the batch is
// dispatched.
package wftbuffer

import (
	"github.com/xdblab/wfreplay/internal/history"
)

// WFTBuffer accumulates events until a full workflow-task attempt is
// available: the lead-in external events, WORKFLOW_TASK_SCHEDULED/STARTED,
// the WORKFLOW_TASK_COMPLETED that confirms the attempt, and every command
// event recorded right after it. The batch closes when the first event of
// the next attempt arrives (a non-command event after the completion), or
// when the stream ends.
type WFTBuffer struct {
	pending       []*history.HistoryEvent
	sawCompletion bool
	ready         [][]*history.HistoryEvent
}

// NewWFTBuffer constructs an empty buffer.
func NewWFTBuffer() *WFTBuffer {
	return &WFTBuffer{}
}

// AddEvent appends event to the buffer. hasNext signals whether more events
// are expected before end-of-stream; a final event with hasNext==false
// force-closes whatever is pending, so a truncated stream (e.g. the live
// tail of a history that ends at WORKFLOW_TASK_STARTED) still yields its
// batch. Returns true once at least one complete batch is ready to Fetch.
func (b *WFTBuffer) AddEvent(event *history.HistoryEvent, hasNext bool) bool {
	// Command events recorded after a WORKFLOW_TASK_COMPLETED belong to the
	// completed attempt; the first non-command event after them starts the
	// next attempt's batch.
	if b.sawCompletion && !event.EventType.IsCommandEvent() {
		b.closeBatch()
	}

	b.pending = append(b.pending, event)

	switch event.EventType {
	case history.EventTypeWorkflowTaskCompleted:
		b.sawCompletion = true
	case history.EventTypeWorkflowTaskFailed, history.EventTypeWorkflowTaskTimedOut:
		// A failed or timed-out attempt produced no commands; nothing can
		// trail it, so it closes its batch on the spot.
		b.closeBatch()
	}

	if !hasNext && len(b.pending) > 0 {
		b.closeBatch()
	}
	return len(b.ready) > 0
}

func (b *WFTBuffer) closeBatch() {
	if len(b.pending) == 0 {
		return
	}
	b.ready = append(b.ready, b.pending)
	b.pending = nil
	b.sawCompletion = false
}

// HasBatch reports whether at least one complete batch is waiting in Fetch.
func (b *WFTBuffer) HasBatch() bool {
	return len(b.ready) > 0
}

// Fetch drains and returns the oldest complete batch. Callers must check
// HasBatch first; Fetch on an empty buffer returns nil.
func (b *WFTBuffer) Fetch() []*history.HistoryEvent {
	if len(b.ready) == 0 {
		return nil
	}
	batch := b.ready[0]
	b.ready = b.ready[1:]
	return batch
}
