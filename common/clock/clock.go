// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package clock provides a TimeSource abstraction so that wall-clock time and
// replay-deterministic time share the same interface.
package clock

import (
	"sync"
	"time"
)

// TimeSource knows how to tell the current time.
type TimeSource interface {
	Now() time.Time
}

// RealTimeSource is a TimeSource backed by the system clock. Used outside of
// workflow replay: the scheduler's host loop, the timer gate, audit
// timestamps.
type RealTimeSource struct{}

func NewRealTimeSource() TimeSource {
	return &RealTimeSource{}
}

func (ts *RealTimeSource) Now() time.Time {
	return time.Now()
}

// EventTimeSource is a TimeSource whose current time is pinned to the
// timestamp of the most recently processed WorkflowTaskStarted event. A
// workflow's GetCurrentTime must never read the system clock: replaying the
// same history must produce the same current time every time, regardless of
// when the replay actually runs. The coordinator calls Update once per
// workflow task, before handing control to the scheduler.
type EventTimeSource struct {
	mu  sync.RWMutex
	now time.Time
}

func NewEventTimeSource() *EventTimeSource {
	return &EventTimeSource{}
}

func (ts *EventTimeSource) Now() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.now
}

// Update advances the current time to t when t is later than the current
// time; an earlier or equal t is ignored, so the clock never moves backwards.
func (ts *EventTimeSource) Update(t time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t.After(ts.now) {
		ts.now = t
	}
}
