// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"github.com/xdblab/wfreplay/internal/coroutine"
	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/workflowerror"
)

// WorkflowContext is what user workflow code receives: the coordinator's
// public operations plus the thread identity needed to await promises.
type WorkflowContext struct {
	c      *Coordinator
	thread *coroutine.WorkflowThread
}

// Engine exposes the coordinator's public operations.
func (w *WorkflowContext) Engine() *Coordinator { return w.c }

// Thread returns the workflow thread this code runs on.
func (w *WorkflowContext) Thread() *coroutine.WorkflowThread { return w.thread }

// Await blocks the workflow thread until p settles, then returns its value
// and error. This is the only suspension point workflow code may use.
func (w *WorkflowContext) Await(p *coroutine.Promise) (any, error) {
	return p.Get(w.thread)
}

// WorkflowFunc is the signature of user workflow code. Returning nil error
// completes the workflow with result; returning a CanceledFailure cancels
// it; any other error fails it. Code that already issued its own terminal
// command (CompleteWorkflow et al.) may return anything, it is ignored.
type WorkflowFunc func(ctx *WorkflowContext) ([]byte, error)

// RegisterWorkflowRoot registers fn as the root workflow thread. The
// thread starts executing on the first event-loop pass after the first
// WORKFLOW_TASK_STARTED event.
func (c *Coordinator) RegisterWorkflowRoot(fn WorkflowFunc) {
	c.dispatcher.Go("workflow-root", func(t *coroutine.WorkflowThread) {
		wctx := &WorkflowContext{c: c, thread: t}
		result, err := fn(wctx)
		if c.workflowFinished {
			return
		}
		switch err.(type) {
		case nil:
			c.CompleteWorkflow(result)
		case *workflowerror.CanceledFailure:
			c.CancelWorkflow(nil)
		default:
			c.FailWorkflow(FailureFromError(err))
		}
	})
}

// FailureFromError converts the typed errors workflow code surfaces into
// the wire Failure shape. ActivityFailure and ChildWorkflowFailure unwrap
// to their cause so retry policies see the original Type.
func FailureFromError(err error) *history.Failure {
	switch e := err.(type) {
	case *workflowerror.ActivityFailure:
		return FailureFromError(e.Cause)
	case *workflowerror.ChildWorkflowFailure:
		return FailureFromError(e.Cause)
	case *workflowerror.ApplicationFailure:
		return &history.Failure{
			Type:         e.Type,
			Message:      e.Message,
			Details:      e.Details,
			NonRetryable: e.NonRetryable,
		}
	case *workflowerror.TimeoutFailure:
		return &history.Failure{Type: "timeout", Message: e.Error(), NonRetryable: true}
	case *workflowerror.CanceledFailure:
		return &history.Failure{Type: "canceled", Message: e.Error()}
	default:
		return &history.Failure{Type: "error", Message: err.Error()}
	}
}
