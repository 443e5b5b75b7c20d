// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package coroutine implements the cooperative, single-threaded scheduler
// that workflow code runs on (spec section 4.E). Workflow code is never
// preempted: exactly one WorkflowThread runs at any instant, and it only
// ever yields control at an explicit suspension point (Promise.Get). The
// scheduler itself is a goroutine per thread gated by a channel handoff —
// the same "one side runs, the other blocks on a channel" idiom
// internal/timergate uses for its host-clock wakeups, just turned into a
// run/yield baton instead of a fire signal.
package coroutine

import (
	"fmt"
)

// threadStatus tracks where a WorkflowThread is in its run/yield cycle.
type threadStatus int

const (
	statusRunnable threadStatus = iota
	statusRunning
	statusBlocked
	statusDone
)

// WorkflowThread is an identity for code executing cooperatively on the
// Dispatcher. At most one WorkflowThread ever runs at a time.
type WorkflowThread struct {
	name   string
	status threadStatus
	resume chan struct{}
	yield  chan struct{}
	err    error

	// unblockWhen is set by Yield and polled by the Dispatcher's run loop
	// each time this thread is resumed; it lets a thread park on an
	// arbitrary predicate (e.g. "promise settled") instead of a single
	// fixed signal.
	unblockWhen func() bool
}

func newWorkflowThread(name string, fn func(t *WorkflowThread)) *WorkflowThread {
	t := &WorkflowThread{
		name:   name,
		status: statusRunnable,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}
	go func() {
		<-t.resume
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok {
					t.err = err
				} else {
					t.err = fmt.Errorf("workflow thread %q panicked: %v", t.name, r)
				}
			}
			t.status = statusDone
			t.yield <- struct{}{}
		}()
		fn(t)
	}()
	return t
}

// Yield hands control back to the Dispatcher's run loop until unblock
// reports true. Called only from Promise.Get; workflow code never calls it
// directly. Any blocking primitive other than this one is forbidden inside
// workflow code — the point of the cooperative model is that every
// suspension is visible to, and driven by, the Dispatcher.
func (t *WorkflowThread) Yield(unblock func() bool) {
	if unblock() {
		return
	}
	t.unblockWhen = unblock
	t.status = statusBlocked
	t.yield <- struct{}{}
	<-t.resume
}

// Name identifies the thread for diagnostics (panics, deadlock detection).
func (t *WorkflowThread) Name() string { return t.name }

// Dispatcher drives every WorkflowThread belonging to one workflow
// execution. There is exactly one Dispatcher per coordinator. Workflow code
// is not replayed from the top for each workflow task: the same
// Dispatcher/threads persist across workflow tasks within one process, and
// only get discarded when the coordinator itself is discarded (e.g. on a
// ProgressRegressionError).
type Dispatcher struct {
	threads            []*WorkflowThread
	eventLoopExecuting bool
}

// NewDispatcher constructs an empty Dispatcher. Use Go to add the root
// workflow thread.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Go starts a new WorkflowThread running fn and returns it immediately,
// without running any of its code yet — it only begins executing on the
// next ExecuteUntilAllBlocked call. This mirrors how a real goroutine
// fork would behave except that nothing actually runs concurrently.
func (d *Dispatcher) Go(name string, fn func(t *WorkflowThread)) *WorkflowThread {
	t := newWorkflowThread(name, fn)
	d.threads = append(d.threads, t)
	return t
}

// ExecuteUntilAllBlocked runs every runnable/blocked-but-now-unblockable
// thread, one at a time, until none can make progress. The eventLoopExecuting
// flag (spec section 4.E) prevents a completion callback that calls back
// into the coordinator — which may itself call ExecuteUntilAllBlocked — from
// re-entering the loop while it is already running.
func (d *Dispatcher) ExecuteUntilAllBlocked() error {
	if d.eventLoopExecuting {
		return nil
	}
	d.eventLoopExecuting = true
	defer func() { d.eventLoopExecuting = false }()

	for {
		progressed := false
		for _, t := range d.threads {
			if !d.threadRunnable(t) {
				continue
			}
			progressed = true
			t.status = statusRunning
			t.resume <- struct{}{}
			<-t.yield
			if t.status == statusDone && t.err != nil {
				return t.err
			}
		}
		if !progressed {
			break
		}
	}
	d.reap()
	return nil
}

func (d *Dispatcher) threadRunnable(t *WorkflowThread) bool {
	switch t.status {
	case statusRunnable:
		return true
	case statusBlocked:
		return t.unblockWhen != nil && t.unblockWhen()
	default:
		return false
	}
}

// reap drops finished threads so IsDone can report completion and memory
// doesn't grow across a long-lived workflow with many completed threads.
func (d *Dispatcher) reap() {
	live := d.threads[:0]
	for _, t := range d.threads {
		if t.status != statusDone {
			live = append(live, t)
		}
	}
	d.threads = live
}

// IsDone reports whether every thread has finished. A thread blocked at rest
// between workflow tasks keeps IsDone false.
func (d *Dispatcher) IsDone() bool {
	return len(d.threads) == 0
}
