// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/xdblab/wfreplay/common/ptr"
	"github.com/xdblab/wfreplay/common/uuid"
	"github.com/xdblab/wfreplay/internal/asyncstub"
	"github.com/xdblab/wfreplay/internal/coroutine"
	"github.com/xdblab/wfreplay/internal/entity"
	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/replayutil"
	"github.com/xdblab/wfreplay/internal/workflowerror"
)

// The operations in this file are the coordinator's public surface for
// workflow code. Every one of them is only legal from inside the event
// loop: they are called by code running on a coroutine.WorkflowThread, and
// panic otherwise.

// ScheduleActivityTask creates an Activity machine, emits its
// ScheduleActivityTask command, and returns the promise workflow code
// awaits. Cancelling the promise routes to the machine's cancellation
// policy. An empty ActivityID is filled in from the deterministic id
// counter.
func (c *Coordinator) ScheduleActivityTask(
	attrs *history.ActivityTaskScheduledAttributes, cancellationType history.CancellationType,
) *coroutine.Promise {
	c.requireEventLoop()
	if attrs.ActivityID == "" {
		attrs.ActivityID = fmt.Sprintf("%d", c.nextID())
	}
	p := coroutine.NewPromise()
	m := entity.NewActivity(
		attrs.ActivityID, attrs.ActivityType, attrs, cancellationType, c.enqueue, c.sink,
		func(result []byte, err error) {
			if err != nil {
				if _, canceled := err.(*workflowerror.CanceledFailure); !canceled {
					err = &workflowerror.ActivityFailure{
						ActivityID:   attrs.ActivityID,
						ActivityType: attrs.ActivityType,
						Cause:        err,
					}
				}
			}
			p.Settle(result, err)
		})
	p.SetCancelCallback(func() { _ = m.Cancel() })
	return p
}

// ScheduleLocalActivityTask schedules a local activity. During replay, if a
// recorded marker for this activityID was preloaded from the batch, its
// outcome resolves the promise immediately and nothing is dispatched.
// Otherwise the parameters are queued for the local worker (drained via
// DrainLocalActivities) and the promise settles when the worker reports
// back through HandleLocalActivityCompletion.
func (c *Coordinator) ScheduleLocalActivityTask(activityID, activityType string, input []byte) *coroutine.Promise {
	c.requireEventLoop()
	if activityID == "" {
		activityID = fmt.Sprintf("%d", c.nextID())
	}
	p := coroutine.NewPromise()

	if preloaded, ok := c.preloadedLocalActivities[activityID]; ok {
		delete(c.preloadedLocalActivities, activityID)
		m := entity.NewLocalActivity(
			activityID, activityType, true, preloaded, nil, nil, preloaded.Attempt, preloaded.Backoff,
			preloaded.ReplayTimeMillis, c.enqueue, c.sink)
		c.localActivityMachines[activityID] = m
		p.Settle(m.Result, m.Err)
		return p
	}

	c.localActivityWaiters[activityID] = p
	c.localActivityAttrs[activityID] = scheduledLocalActivity{activityType: activityType, input: input}
	params := ExecuteLocalActivityParameters{
		ActivityID:   activityID,
		ActivityType: activityType,
		Input:        input,
		Attempt:      1,
	}
	if c.replaying {
		// The recorded marker may sit in a batch not yet scanned; dispatch
		// to a worker only once replay ends without finding it.
		c.deferredLocalActivities = append(c.deferredLocalActivities, params)
	} else {
		c.pendingLocalActivities = append(c.pendingLocalActivities, params)
	}
	return p
}

// HandleLocalActivityCompletion is called by the transport once a local
// worker finishes executing a local activity. It records the marker
// command, settles the awaiting promise, and re-runs the event loop and
// command preparation so downstream operations scheduled by the unblocked
// code are flushed before the workflow task closes.
func (c *Coordinator) HandleLocalActivityCompletion(
	activityID string, result []byte, failure *history.Failure, attempt int32, backoff time.Duration,
) error {
	p, ok := c.localActivityWaiters[activityID]
	if !ok {
		return fmt.Errorf("no local activity waiting for activityId=%s", activityID)
	}
	delete(c.localActivityWaiters, activityID)
	sched := c.localActivityAttrs[activityID]
	delete(c.localActivityAttrs, activityID)

	m := entity.NewLocalActivity(
		activityID, sched.activityType, false, nil, result, failure, attempt, backoff,
		c.CurrentTimeMillis(), c.enqueue, c.sink)
	c.localActivityMachines[activityID] = m
	p.Settle(m.Result, m.Err)

	if err := c.runEventLoop(); err != nil {
		return err
	}
	return c.PrepareCommands()
}

// NewTimer starts a durable timer and returns the promise that settles when
// it fires (value nil) or is cancelled (CanceledFailure).
func (c *Coordinator) NewTimer(d time.Duration) *coroutine.Promise {
	c.requireEventLoop()
	timerID := fmt.Sprintf("%d", c.nextID())
	p := coroutine.NewPromise()
	m := entity.NewTimer(timerID,
		&history.TimerStartedAttributes{TimerID: timerID, Duration: d},
		c.enqueue, c.sink,
		func(err error) { p.Settle(nil, err) })
	p.SetCancelCallback(func() { _ = m.Cancel() })
	return p
}

// ChildWorkflowHandle carries the two promises a child workflow start
// produces: Started settles with the child's run id once the service
// confirms the start, Completed with the child's result or failure.
type ChildWorkflowHandle struct {
	Started   *coroutine.Promise
	Completed *coroutine.Promise
}

// StartChildWorkflow creates a ChildWorkflow machine and returns its
// handle. Cancelling the Completed promise routes to the machine's
// cancellation type.
func (c *Coordinator) StartChildWorkflow(attrs *history.StartChildWorkflowExecutionInitiatedAttributes) *ChildWorkflowHandle {
	c.requireEventLoop()
	if attrs.WorkflowID == "" {
		attrs.WorkflowID = fmt.Sprintf("%d", c.nextID())
	}
	h := &ChildWorkflowHandle{
		Started:   coroutine.NewPromise(),
		Completed: coroutine.NewPromise(),
	}
	m := entity.NewChildWorkflow(attrs.WorkflowID, attrs, c.enqueue, c.sink,
		func(workflowID, runID string, err error) {
			h.Started.Settle(runID, err)
		},
		func(result []byte, err error) {
			if err != nil {
				if _, canceled := err.(*workflowerror.CanceledFailure); !canceled {
					err = &workflowerror.ChildWorkflowFailure{WorkflowID: attrs.WorkflowID, Cause: err}
				}
			}
			h.Completed.Settle(result, err)
		})
	h.Completed.SetCancelCallback(func() { _ = m.Cancel() })
	return h
}

// SignalExternalWorkflowExecution sends a signal to another workflow and
// returns a promise that settles once the service acknowledges delivery.
func (c *Coordinator) SignalExternalWorkflowExecution(attrs *history.SignalExternalWorkflowExecutionInitiatedAttributes) *coroutine.Promise {
	c.requireEventLoop()
	p := coroutine.NewPromise()
	m := entity.NewSignalExternal(attrs.WorkflowID, attrs, c.enqueue, c.sink,
		func(err error) { p.Settle(nil, err) })
	p.SetCancelCallback(func() { _ = m.Cancel() })
	return p
}

// RequestCancelExternalWorkflowExecution requests cancellation of another
// workflow and returns a promise that settles once the request is
// delivered or fails.
func (c *Coordinator) RequestCancelExternalWorkflowExecution(attrs *history.RequestCancelExternalWorkflowExecutionInitiatedAttributes) *coroutine.Promise {
	c.requireEventLoop()
	p := coroutine.NewPromise()
	m := entity.NewCancelExternal(attrs.WorkflowID, attrs, c.enqueue, c.sink,
		func(err error) { p.Settle(nil, err) })
	p.SetCancelCallback(func() { _ = m.Cancel() })
	return p
}

// UpsertSearchAttributes records a search-attribute upsert. Fire and
// forget: nothing for workflow code to await.
func (c *Coordinator) UpsertSearchAttributes(attrs map[string]any) {
	c.requireEventLoop()
	entity.NewUpsertSearchAttributes(
		&history.UpsertWorkflowSearchAttributesAttributes{SearchAttributes: attrs},
		c.enqueue, c.sink)
}

// CompleteWorkflow emits the workflow's successful terminal command.
func (c *Coordinator) CompleteWorkflow(result []byte) {
	c.requireEventLoop()
	c.workflowFinished = true
	entity.NewCompleteWorkflow(result, c.enqueue, c.sink)
}

// FailWorkflow emits the workflow's failing terminal command.
func (c *Coordinator) FailWorkflow(failure *history.Failure) {
	c.requireEventLoop()
	c.workflowFinished = true
	entity.NewFailWorkflow(failure, c.enqueue, c.sink)
}

// CancelWorkflow emits the workflow's cancelled terminal command, the
// answer to an external cancel request.
func (c *Coordinator) CancelWorkflow(details []byte) {
	c.requireEventLoop()
	c.workflowFinished = true
	entity.NewCancelWorkflow(details, c.enqueue, c.sink)
}

// ContinueAsNewWorkflow closes this run and asks the service to start a
// fresh one with the given attributes.
func (c *Coordinator) ContinueAsNewWorkflow(attrs *history.WorkflowExecutionContinuedAsNewAttributes) {
	c.requireEventLoop()
	c.workflowFinished = true
	entity.NewContinueAsNew(attrs, c.enqueue, c.sink)
}

// SideEffect runs fn exactly once per execution and returns a promise
// settling with its result. During replay fn is never invoked: the call
// suspends until the recorded marker value is read from history.
func (c *Coordinator) SideEffect(fn func() []byte) *coroutine.Promise {
	c.requireEventLoop()
	id := c.nextID()
	p := coroutine.NewPromise()
	if result, ok := c.preloadedSideEffects[id]; ok {
		delete(c.preloadedSideEffects, id)
		m := entity.NewSideEffect(id, true, result, nil, c.enqueue, c.sink)
		p.Settle(m.Result, nil)
		return p
	}
	if c.replaying {
		// The marker sits in a batch not yet scanned; the promise settles
		// when preloading reveals it.
		c.sideEffectWaiters = append(c.sideEffectWaiters, sideEffectWaiter{id: id, promise: p})
		return p
	}
	m := entity.NewSideEffect(id, false, nil, fn, c.enqueue, c.sink)
	p.Settle(m.Result, nil)
	return p
}

// MutableSideEffect returns a promise settling with fn(previous), keyed by
// id; a marker is recorded only when the value changed. Replay rereads
// recorded values and never invokes fn.
func (c *Coordinator) MutableSideEffect(id string, fn func(previous []byte) []byte) *coroutine.Promise {
	c.requireEventLoop()
	previous := c.mutableSideEffectValues[id]
	p := coroutine.NewPromise()
	if c.replaying {
		if queue := c.preloadedMutableSideEffects[id]; len(queue) > 0 {
			preloaded := queue[0]
			c.preloadedMutableSideEffects[id] = queue[1:]
			m := entity.NewMutableSideEffect(id, true, preloaded, previous, nil, c.enqueue, c.sink)
			c.mutableSideEffectValues[id] = m.Result
			p.Settle(m.Result, nil)
			return p
		}
		if c.markersCurrent {
			// The recorded markers for this call are already scanned and
			// none matched: the original run saw an unchanged value.
			m := entity.NewMutableSideEffect(id, true, previous, previous, nil, c.enqueue, c.sink)
			c.mutableSideEffectValues[id] = m.Result
			p.Settle(m.Result, nil)
			return p
		}
		// Whether a fresh marker exists is only known once the next batch
		// has been scanned; settles with the last recorded value otherwise.
		c.mutableWaiters = append(c.mutableWaiters, mutableWaiter{id: id, previous: previous, promise: p})
		return p
	}
	m := entity.NewMutableSideEffect(id, false, nil, previous, fn, c.enqueue, c.sink)
	c.mutableSideEffectValues[id] = m.Result
	p.Settle(m.Result, nil)
	return p
}

// GetVersion resolves the version for changeID as a promise. The first
// call of a first execution records maxSupported as a marker; every later
// call (and every replayed call) resolves the recorded value. A recorded
// version outside [minSupported, maxSupported] settles the promise with a
// deterministic non-retryable error.
func (c *Coordinator) GetVersion(changeID string, minSupported, maxSupported int32) *coroutine.Promise {
	c.requireEventLoop()
	p := coroutine.NewPromise()
	if existing, ok := c.versionMachines[changeID]; ok {
		m, err := entity.NewVersion(changeID, minSupported, maxSupported, ptr.Any(existing.Version), nil, c.enqueue, c.sink)
		c.versionMachines[changeID] = m
		p.Settle(m.Version, err)
		return p
	}
	if v, ok := c.preloadedVersions[changeID]; ok {
		m, err := entity.NewVersion(changeID, minSupported, maxSupported, nil, ptr.Any(v), c.enqueue, c.sink)
		c.versionMachines[changeID] = m
		p.Settle(m.Version, err)
		return p
	}
	if c.replaying {
		if c.markersCurrent {
			// No marker anywhere in scanned history: the call is new even
			// though earlier tasks are replaying; resolve maxSupported
			// without recording.
			m, err := entity.NewVersion(changeID, minSupported, maxSupported, nil, ptr.Any(maxSupported), c.enqueue, c.sink)
			c.versionMachines[changeID] = m
			p.Settle(m.Version, err)
			return p
		}
		c.versionWaiters = append(c.versionWaiters, versionWaiter{
			changeID: changeID, minSupported: minSupported, maxSupported: maxSupported, promise: p,
		})
		return p
	}
	m, err := entity.NewVersion(changeID, minSupported, maxSupported, nil, nil, c.enqueue, c.sink)
	c.versionMachines[changeID] = m
	p.Settle(m.Version, err)
	return p
}

// ReceiveSignal returns a promise that settles with the next payload of the
// named signal; already-buffered signals resolve immediately, in delivery
// order.
func (c *Coordinator) ReceiveSignal(name string) *coroutine.Promise {
	c.requireEventLoop()
	p := coroutine.NewPromise()
	if buffered := c.signalBuffers[name]; len(buffered) > 0 {
		c.signalBuffers[name] = buffered[1:]
		p.Settle(buffered[0], nil)
		return p
	}
	c.signalWaiters[name] = append(c.signalWaiters[name], p)
	return p
}

// CancelRequestedPromise settles with a CanceledFailure once the service
// delivers an external cancel request for this workflow. Combine with
// coroutine.Any to make any await cancellation-sensitive.
func (c *Coordinator) CancelRequestedPromise() *coroutine.Promise {
	return c.cancelRequested
}

// ExecuteAsync invokes methodName on a generated workflow/activity stub and
// returns a promise for its eventual result. Only values implementing the
// stub marker interface are eligible: a plain closure or top-level function
// settles the promise with an error instead of being dispatched. A stub
// method that itself returns a promise is passed through unwrapped, so
// chained stub calls compose.
func (c *Coordinator) ExecuteAsync(receiver any, methodName string, args ...any) *coroutine.Promise {
	c.requireEventLoop()
	p := coroutine.NewPromise()
	if !asyncstub.IsAsync(receiver) {
		p.Settle(nil, fmt.Errorf("receiver %T is not a workflow stub, cannot dispatch asynchronously", receiver))
		return p
	}
	results, err := asyncstub.Invoke(receiver.(asyncstub.Stub), methodName, args...)
	if err != nil {
		p.Settle(nil, err)
		return p
	}
	for _, result := range results {
		if chained, ok := result.Interface().(*coroutine.Promise); ok {
			return chained
		}
	}
	var value any
	if len(results) > 0 {
		value = results[0].Interface()
	}
	p.Settle(value, nil)
	return p
}

// RandomUUID returns the next deterministic UUID: a name-based UUID over
// runID + ":" + idCounter, identical between a live run and its replays.
func (c *Coordinator) RandomUUID() uuid.UUID {
	c.requireEventLoop()
	return uuid.NewDeterministic(c.runID, c.nextID())
}

// NewRandom returns a math/rand source seeded from the next deterministic
// UUID; replays produce identical sequences.
func (c *Coordinator) NewRandom() *rand.Rand {
	c.requireEventLoop()
	seed := replayutil.DeterministicRandomSeed(c.runID, c.nextID())
	return replayutil.NewDeterministicRandom(seed)
}
