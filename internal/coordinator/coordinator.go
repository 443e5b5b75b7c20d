// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package coordinator implements the workflow state machines coordinator:
// the component that consumes a replayed history in workflow-task batches,
// drives the entity state machines in internal/entity, maintains the
// command queue, and exposes the synchronous-looking public operations
// workflow code calls through internal/coroutine.
package coordinator

import (
	"fmt"
	"time"

	"github.com/xdblab/wfreplay/common/clock"
	"github.com/xdblab/wfreplay/common/decision"
	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/common/log/tag"
	"github.com/xdblab/wfreplay/common/ptr"
	"github.com/xdblab/wfreplay/internal/coroutine"
	"github.com/xdblab/wfreplay/internal/entity"
	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/replayutil"
	"github.com/xdblab/wfreplay/internal/wftbuffer"
	"github.com/xdblab/wfreplay/internal/workflowerror"
)

// Coordinator is the workflow state machines coordinator: one instance per
// workflow execution, owning its own command queue and event-id -> machine
// map. Never shared across workflows, never reused after a
// ProgressRegressionError.
type Coordinator struct {
	logger log.Logger
	buffer *wftbuffer.WFTBuffer

	// replay state
	runID                      string
	previousStartedEventID     int64
	workflowTaskStartedEventID int64
	currentStartedEventID      int64
	lastHandledEventID         int64
	replaying                  bool
	idCounter                  int64

	clock *clock.EventTimeSource

	// command queues
	cancellableCommands []*entity.CancellableCommand
	commands            []*entity.CancellableCommand

	// routing tables
	stateMachines         map[int64]entity.Machine
	versionMachines       map[string]*entity.Version
	localActivityMachines map[string]*entity.LocalActivity

	// marker preloads, filled per batch before dispatch
	preloadedVersions          map[string]int32
	preloadedSideEffects       map[int64][]byte
	preloadedMutableSideEffects map[string][][]byte
	preloadedLocalActivities   map[string]*history.LocalActivityMarkerDetails

	// last recorded value per MutableSideEffect id, live and replayed
	mutableSideEffectValues map[string][]byte

	// marker waiters: calls made while replaying suspend until the next
	// batch's preload pass reveals (or rules out) their recorded marker
	sideEffectWaiters []sideEffectWaiter
	mutableWaiters    []mutableWaiter
	versionWaiters    []versionWaiter

	// markersCurrent is true while the markers relevant to currently
	// runnable code have all been preloaded: everywhere in a batch except
	// the trailing WORKFLOW_TASK_STARTED event, whose task records its
	// markers in the following batch. Calls made while it is false must
	// suspend; calls made while it is true resolve from the preloads
	// immediately.
	markersCurrent bool

	// signal routing
	signalBuffers map[string][][]byte
	signalWaiters map[string][]*coroutine.Promise

	cancelRequested *coroutine.Promise

	// local activities awaiting a worker dispatch; deferred while replaying
	// until their marker is ruled out
	pendingLocalActivities  []ExecuteLocalActivityParameters
	deferredLocalActivities []ExecuteLocalActivityParameters
	localActivityWaiters    map[string]*coroutine.Promise
	localActivityAttrs      map[string]scheduledLocalActivity

	workflowTask *entity.WorkflowTask

	// terminal-command bookkeeping: once CompleteWorkflow/FailWorkflow/
	// CancelWorkflow/ContinueAsNew has been emitted, no further command may
	// be produced in this workflow task.
	emittedCommandTypes []history.CommandType
	workflowFinished    bool

	preparing   bool
	inEventLoop bool

	dispatcher *coroutine.Dispatcher

	auditor Auditor
	sink    entity.StateMachineSink
	metrics *replayutil.ReplayAwareScope
}

// Auditor is the optional, replay-suppressed sink mirrored after each
// finalized workflow task. See internal/audit for the Pulsar and SQL
// implementations.
type Auditor interface {
	Publish(record AuditRecord)
}

// AuditRecord is what the coordinator hands the Auditor once a workflow
// task's commands are finalized.
type AuditRecord struct {
	RunID                      string            `json:"runId"`
	WorkflowTaskStartedEventID int64             `json:"workflowTaskStartedEventId"`
	Commands                   []history.Command `json:"commands"`
	NonDeterministic           bool              `json:"nonDeterministic"`
	Timestamp                  time.Time         `json:"timestamp"`
}

// NoopAuditor discards every record; the default when no sink is
// configured, so coordinator unit tests never need a database or broker.
type NoopAuditor struct{}

func (NoopAuditor) Publish(AuditRecord) {}

// ExecuteLocalActivityParameters describes one local activity awaiting
// dispatch to a local worker; drained by the transport at end of workflow
// task alongside the command list.
type ExecuteLocalActivityParameters struct {
	ActivityID   string
	ActivityType string
	Input        []byte
	Attempt      int32
}

type scheduledLocalActivity struct {
	activityType string
	input        []byte
}

type sideEffectWaiter struct {
	id      int64
	promise *coroutine.Promise
}

type mutableWaiter struct {
	id       string
	previous []byte
	promise  *coroutine.Promise
}

type versionWaiter struct {
	changeID     string
	minSupported int32
	maxSupported int32
	promise      *coroutine.Promise
}

// Options configures a new Coordinator.
type Options struct {
	RunID            string
	Logger           log.Logger
	Auditor          Auditor
	Metrics          replayutil.MetricsScope
	StateMachineSink entity.StateMachineSink
}

// New constructs a Coordinator for one workflow execution.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = log.NewDevelopmentLogger()
	}
	if opts.Auditor == nil {
		opts.Auditor = NoopAuditor{}
	}
	c := &Coordinator{
		logger:                      opts.Logger,
		buffer:                      wftbuffer.NewWFTBuffer(),
		runID:                       opts.RunID,
		clock:                       clock.NewEventTimeSource(),
		stateMachines:               make(map[int64]entity.Machine),
		versionMachines:             make(map[string]*entity.Version),
		localActivityMachines:       make(map[string]*entity.LocalActivity),
		preloadedVersions:           make(map[string]int32),
		preloadedSideEffects:        make(map[int64][]byte),
		preloadedMutableSideEffects: make(map[string][][]byte),
		preloadedLocalActivities:    make(map[string]*history.LocalActivityMarkerDetails),
		mutableSideEffectValues:     make(map[string][]byte),
		signalBuffers:               make(map[string][][]byte),
		signalWaiters:               make(map[string][]*coroutine.Promise),
		cancelRequested:             coroutine.NewPromise(),
		localActivityWaiters:        make(map[string]*coroutine.Promise),
		localActivityAttrs:          make(map[string]scheduledLocalActivity),
		auditor:                     opts.Auditor,
		sink:                        opts.StateMachineSink,
		dispatcher:                  coroutine.NewDispatcher(),
	}
	c.metrics = replayutil.NewReplayAwareScope(opts.Metrics, c.IsReplaying)
	c.workflowTask = entity.NewWorkflowTask(c.sink, c.onWorkflowTaskStarted)
	return c
}

// Dispatcher exposes the cooperative scheduler driving this workflow's
// code, so callers (the replay harness, tests) can register the root
// workflow thread with coroutine.Dispatcher.Go.
func (c *Coordinator) Dispatcher() *coroutine.Dispatcher { return c.dispatcher }

// RunID returns the workflow execution's run id.
func (c *Coordinator) RunID() string { return c.runID }

// IsReplaying reports whether the coordinator is still replaying recorded
// history: Replaying == (PreviousStartedEventID > CurrentStartedEventID).
func (c *Coordinator) IsReplaying() bool { return c.replaying }

// CurrentTimeMillis returns the deterministic clock value: the latest
// CurrentTimeMillis observed on a WorkflowTaskStarted event, never wall time.
func (c *Coordinator) CurrentTimeMillis() int64 {
	return c.clock.Now().UnixMilli()
}

// SetPreviousStartedEventID configures the replay boundary the transport
// received with the workflow task. A previousStartedEventID behind what
// this coordinator already processed means the service lost progress: the
// coordinator must be discarded, never fed further events.
func (c *Coordinator) SetPreviousStartedEventID(id int64) error {
	if id < c.currentStartedEventID {
		return &workflowerror.ProgressRegressionError{
			PreviousStartedEventID: id,
			CurrentStartedEventID:  c.currentStartedEventID,
		}
	}
	c.previousStartedEventID = id
	c.replaying = c.previousStartedEventID > c.currentStartedEventID
	return nil
}

// SetWorkflowTaskStartedEventID records the started event id of the task
// currently being processed, for diagnostics and the audit record.
func (c *Coordinator) SetWorkflowTaskStartedEventID(id int64) {
	c.workflowTaskStartedEventID = id
}

// InspectionState is the read-only snapshot served by the introspection
// endpoint (internal/inspector).
type InspectionState struct {
	PreviousStartedEventID int64 `json:"previousStartedEventId"`
	CurrentStartedEventID  int64 `json:"currentStartedEventId"`
	Replaying              bool  `json:"replaying"`
	PendingCommandCount    int   `json:"pendingCommandCount"`
}

// Inspect returns the coordinator's current replay position.
func (c *Coordinator) Inspect() InspectionState {
	pending := 0
	for _, cc := range c.commands {
		if !cc.Cancelled && !cc.Shipped {
			pending++
		}
	}
	return InspectionState{
		PreviousStartedEventID: c.previousStartedEventID,
		CurrentStartedEventID:  c.currentStartedEventID,
		Replaying:              c.replaying,
		PendingCommandCount:    pending,
	}
}

// HandleEvent feeds one history event. Duplicates (EventID <=
// LastHandledEventID) are silently dropped. hasNext mirrors the transport's
// "more events in this page" signal, passed straight to the WFTBuffer.
func (c *Coordinator) HandleEvent(event *history.HistoryEvent, hasNext bool) error {
	if event.EventID <= c.lastHandledEventID {
		return nil
	}
	c.lastHandledEventID = event.EventID
	ready := c.buffer.AddEvent(event, hasNext)
	if !ready {
		return nil
	}
	for c.buffer.HasBatch() {
		batch := c.buffer.Fetch()
		if err := c.handleEventsBatch(batch); err != nil {
			wrapped := c.wrapError(err)
			if nde, ok := wrapped.(*workflowerror.NonDeterministicError); ok {
				c.auditNonDeterminism(nde)
			}
			return wrapped
		}
	}
	return nil
}

// auditNonDeterminism reports a detected replay divergence to the Auditor.
// Unlike mirrorAudit this is never replay-suppressed: divergence while
// replaying is exactly the condition operators need to see. No commands are
// attached — the workflow task is failing, nothing ships.
func (c *Coordinator) auditNonDeterminism(nde *workflowerror.NonDeterministicError) {
	c.logger.Error("non-deterministic workflow detected",
		tag.Error(nde), tag.RunID(c.runID), tag.EventID(c.currentStartedEventID))
	c.auditor.Publish(AuditRecord{
		RunID:                      c.runID,
		WorkflowTaskStartedEventID: c.workflowTaskStartedEventID,
		NonDeterministic:           true,
	})
}

func (c *Coordinator) wrapError(err error) error {
	switch err.(type) {
	case *workflowerror.NonDeterministicError,
		*workflowerror.ProgressRegressionError,
		*workflowerror.InternalWorkflowTaskError:
		return err
	default:
		return workflowerror.NewInternalWorkflowTaskError(err, c.taskState())
	}
}

func (c *Coordinator) taskState() workflowerror.WorkflowTaskState {
	return workflowerror.WorkflowTaskState{
		PreviousStartedEventID:     c.previousStartedEventID,
		WorkflowTaskStartedEventID: c.workflowTaskStartedEventID,
		CurrentStartedEventID:      c.currentStartedEventID,
	}
}

// handleEventsBatch preloads markers, dispatches each event, manages the
// replay flag, runs the event loop so code unblocked by the batch executes,
// and finally prepares the commands that code produced.
func (c *Coordinator) handleEventsBatch(batch []*history.HistoryEvent) error {
	c.preloadMarkers(batch)
	c.metrics.RecordDistribution("replay.batch_size", float64(len(batch)), nil)

	// Calls suspended on a marker recorded by an earlier task resume now,
	// before any event in this batch is dispatched, so the commands their
	// continuations produce are queued in time to match this batch's
	// command events.
	c.markersCurrent = true
	if c.resolveMarkerWaiters() {
		if err := c.runEventLoop(); err != nil {
			return err
		}
		if err := c.PrepareCommands(); err != nil {
			return err
		}
	}

	for i, event := range batch {
		if i == len(batch)-1 && event.EventType == history.EventTypeWorkflowTaskStarted {
			// The task starting here records its own markers in the next
			// batch; code it runs has to suspend on them.
			c.markersCurrent = false
		}
		if err := c.dispatchOne(event); err != nil {
			return err
		}
		if event.EventType == history.EventTypeWorkflowTaskCompleted {
			continue
		}
		if event.EventType.IsCommandEvent() {
			continue
		}
		// Command events remain considered part of replay until the
		// following workflow-task sequence begins; only a non-command,
		// non-completion event may flip the flag.
		if c.currentStartedEventID >= c.previousStartedEventID {
			c.replaying = false
		}
	}
	if err := c.runEventLoop(); err != nil {
		return err
	}
	return c.PrepareCommands()
}

// preloadMarkers scans the whole batch for marker events before any event
// in it is dispatched. Version markers whose GetVersion call was removed
// from code are absorbed instead of rejected; SideEffect, MutableSideEffect
// and LocalActivity results are indexed so re-executing workflow code reads
// the recorded values instead of re-running its functions.
func (c *Coordinator) preloadMarkers(batch []*history.HistoryEvent) {
	for _, event := range batch {
		attrs, ok := event.Attributes.(*history.MarkerRecordedAttributes)
		if !ok {
			continue
		}
		switch attrs.MarkerName {
		case history.MarkerNameVersion:
			if d, ok := attrs.Details["details"].(*history.VersionMarkerDetails); ok {
				if _, exists := c.preloadedVersions[d.ChangeID]; !exists {
					c.preloadedVersions[d.ChangeID] = d.Version
				}
			}
		case history.MarkerNameSideEffect:
			if d, ok := attrs.Details["details"].(*history.SideEffectMarkerDetails); ok {
				c.preloadedSideEffects[d.SideEffectID] = d.Result
			}
		case history.MarkerNameMutableSideEffect:
			if d, ok := attrs.Details["details"].(*history.MutableSideEffectMarkerDetails); ok {
				c.preloadedMutableSideEffects[d.ID] = append(c.preloadedMutableSideEffects[d.ID], d.Result)
			}
		case history.MarkerNameLocalActivity:
			if d, ok := attrs.Details["details"].(*history.LocalActivityMarkerDetails); ok {
				c.preloadedLocalActivities[d.ActivityID] = d
			}
		}
	}
}

// resolveMarkerWaiters settles the calls that suspended during an earlier
// batch waiting on a recorded marker. SideEffect and LocalActivity waiters
// settle only when their marker has been preloaded (a marker still in a
// later batch keeps them suspended); MutableSideEffect and Version waiters
// always settle, falling back to the last recorded value and maxSupported
// respectively when no marker was recorded. Returns whether anything
// settled.
func (c *Coordinator) resolveMarkerWaiters() bool {
	settled := false

	remaining := c.sideEffectWaiters[:0]
	for _, w := range c.sideEffectWaiters {
		result, ok := c.preloadedSideEffects[w.id]
		if !ok {
			remaining = append(remaining, w)
			continue
		}
		delete(c.preloadedSideEffects, w.id)
		m := entity.NewSideEffect(w.id, true, result, nil, c.enqueue, c.sink)
		w.promise.Settle(m.Result, nil)
		settled = true
	}
	c.sideEffectWaiters = remaining

	for _, w := range c.mutableWaiters {
		preloaded := w.previous
		if queue := c.preloadedMutableSideEffects[w.id]; len(queue) > 0 {
			preloaded = queue[0]
			c.preloadedMutableSideEffects[w.id] = queue[1:]
		}
		m := entity.NewMutableSideEffect(w.id, true, preloaded, w.previous, nil, c.enqueue, c.sink)
		c.mutableSideEffectValues[w.id] = m.Result
		w.promise.Settle(m.Result, nil)
		settled = true
	}
	c.mutableWaiters = nil

	for _, w := range c.versionWaiters {
		version := w.maxSupported
		if v, ok := c.preloadedVersions[w.changeID]; ok {
			version = v
		}
		m, err := entity.NewVersion(w.changeID, w.minSupported, w.maxSupported, nil, ptr.Any(version), c.enqueue, c.sink)
		c.versionMachines[w.changeID] = m
		w.promise.Settle(m.Version, err)
		settled = true
	}
	c.versionWaiters = nil

	deferred := c.deferredLocalActivities[:0]
	for _, params := range c.deferredLocalActivities {
		preloaded, ok := c.preloadedLocalActivities[params.ActivityID]
		if !ok {
			deferred = append(deferred, params)
			continue
		}
		delete(c.preloadedLocalActivities, params.ActivityID)
		p := c.localActivityWaiters[params.ActivityID]
		delete(c.localActivityWaiters, params.ActivityID)
		delete(c.localActivityAttrs, params.ActivityID)
		m := entity.NewLocalActivity(
			params.ActivityID, params.ActivityType, true, preloaded, nil, nil, preloaded.Attempt,
			preloaded.Backoff, preloaded.ReplayTimeMillis, c.enqueue, c.sink)
		c.localActivityMachines[params.ActivityID] = m
		p.Settle(m.Result, m.Err)
		settled = true
	}
	c.deferredLocalActivities = deferred

	return settled
}

func (c *Coordinator) dispatchOne(event *history.HistoryEvent) error {
	switch a := event.Attributes.(type) {
	case *history.WorkflowTaskStartedAttributes:
		return c.workflowTask.HandleEvent(event)
	case *history.MarkerRecordedAttributes:
		return c.dispatchMarker(event, a)
	}

	if event.EventType.IsCommandEvent() {
		return c.dispatchCommandEvent(event)
	}
	return c.dispatchExternalEvent(event)
}

// dispatchMarker reconciles a MARKER_RECORDED event with the command queue.
// During live/sticky execution the matching RecordMarker command sits on
// the queue and is consumed; during a fresh replay, re-executing code read
// the preloaded value and emitted no command, so the event is absorbed. A
// version marker whose GetVersion call was removed from code is likewise
// absorbed. LocalActivity markers match by ActivityID anywhere in the
// queue, never by head position.
func (c *Coordinator) dispatchMarker(event *history.HistoryEvent, attrs *history.MarkerRecordedAttributes) error {
	switch attrs.MarkerName {
	case history.MarkerNameVersion:
		details, _ := attrs.Details["details"].(*history.VersionMarkerDetails)
		if details == nil {
			return nil
		}
		c.consumeQueuedMarker(history.MarkerNameVersion, func(d any) bool {
			vd, ok := d.(*history.VersionMarkerDetails)
			return ok && vd.ChangeID == details.ChangeID
		})
		if m, ok := c.versionMachines[details.ChangeID]; ok {
			return m.HandleEvent(event)
		}
		// No GetVersion call this run resolved this changeID: absorbed,
		// no command is consumed and no error is raised.
		return nil

	case history.MarkerNameSideEffect:
		c.consumeQueuedMarker(history.MarkerNameSideEffect, func(d any) bool {
			sd, ok := d.(*history.SideEffectMarkerDetails)
			details, _ := attrs.Details["details"].(*history.SideEffectMarkerDetails)
			return ok && details != nil && sd.SideEffectID == details.SideEffectID
		})
		return nil

	case history.MarkerNameMutableSideEffect:
		c.consumeQueuedMarker(history.MarkerNameMutableSideEffect, func(d any) bool {
			md, ok := d.(*history.MutableSideEffectMarkerDetails)
			details, _ := attrs.Details["details"].(*history.MutableSideEffectMarkerDetails)
			return ok && details != nil && md.ID == details.ID
		})
		return nil

	case history.MarkerNameLocalActivity:
		details, _ := attrs.Details["details"].(*history.LocalActivityMarkerDetails)
		if details == nil {
			return workflowerror.NewNonDeterministicError("local activity marker missing details")
		}
		removed := c.removeQueuedLocalActivityMarker(details.ActivityID)
		if m, ok := c.localActivityMachines[details.ActivityID]; ok {
			delete(c.localActivityMachines, details.ActivityID)
			return m.HandleEvent(event)
		}
		if !removed {
			return workflowerror.NewNonDeterministicError(
				"local activity marker for activityId=%s matches no pending command and no machine", details.ActivityID)
		}
		return nil

	default:
		return c.dispatchCommandEvent(event)
	}
}

// consumeQueuedMarker pops the head of the commands queue if it is a
// RecordMarker command of the given marker name whose details satisfy
// matches. Returns whether a command was consumed.
func (c *Coordinator) consumeQueuedMarker(markerName string, matches func(details any) bool) bool {
	for len(c.commands) > 0 && c.commands[0].Cancelled {
		c.commands = c.commands[1:]
	}
	if len(c.commands) == 0 {
		return false
	}
	head := c.commands[0]
	attrs, ok := head.Command.Attributes.(*history.MarkerRecordedAttributes)
	if !ok || attrs.MarkerName != markerName {
		return false
	}
	if !matches(attrs.Details["details"]) {
		return false
	}
	c.commands = c.commands[1:]
	return true
}

// removeQueuedLocalActivityMarker finds and removes, from anywhere in the
// commands queue (a local activity may be re-dispatched out of order after
// a force-failed workflow task), the RecordMarker command carrying this
// activityId.
func (c *Coordinator) removeQueuedLocalActivityMarker(activityID string) bool {
	for i, cc := range c.commands {
		if cc.Cancelled {
			continue
		}
		details := localActivityDetailsOf(cc.Command)
		if details != nil && details.ActivityID == activityID {
			c.commands = append(c.commands[:i], c.commands[i+1:]...)
			return true
		}
	}
	return false
}

func localActivityDetailsOf(cmd history.Command) *history.LocalActivityMarkerDetails {
	attrs, ok := cmd.Attributes.(*history.MarkerRecordedAttributes)
	if !ok || attrs.MarkerName != history.MarkerNameLocalActivity {
		return nil
	}
	details, _ := attrs.Details["details"].(*history.LocalActivityMarkerDetails)
	return details
}

// dispatchCommandEvent matches event against the head of the commands
// queue, skipping cancelled commands.
func (c *Coordinator) dispatchCommandEvent(event *history.HistoryEvent) error {
	for len(c.commands) > 0 && c.commands[0].Cancelled {
		c.commands = c.commands[1:]
	}
	if len(c.commands) == 0 {
		return workflowerror.NewNonDeterministicError(
			"received command event %s but no command is pending", event.EventType)
	}
	head := c.commands[0]
	if !head.Command.MatchesEvent(event) {
		return workflowerror.NewNonDeterministicError(
			"command event %s does not match pending command %s", event.EventType, head.Command.CommandType)
	}
	c.commands = c.commands[1:]
	machine := head.Machine
	if err := machine.HandleEvent(event); err != nil {
		return err
	}
	if !machine.IsFinalState() {
		c.stateMachines[event.EventID] = machine
	}
	return nil
}

// dispatchExternalEvent routes a non-command event to the machine that
// owns its initiating event-id, or handles it as non-stateful.
func (c *Coordinator) dispatchExternalEvent(event *history.HistoryEvent) error {
	switch attrs := event.Attributes.(type) {
	case *history.WorkflowExecutionStartedAttributes:
		if c.runID == "" {
			c.runID = attrs.RunID
		}
		return nil
	case *history.WorkflowExecutionSignaledAttributes:
		c.deliverSignal(attrs.SignalName, attrs.Input)
		return nil
	case *history.WorkflowExecutionCancelRequestedAttributes:
		c.cancelRequested.Settle(nil, &workflowerror.CanceledFailure{})
		return nil
	case *history.WorkflowExecutionTimedOutAttributes:
		// Treated as a terminal event, never silently dropped: the
		// coordinator surfaces a timeout failure to the transport and is
		// done processing this execution.
		c.workflowFinished = true
		return workflowerror.NewInternalWorkflowTaskError(
			&workflowerror.TimeoutFailure{TimeoutType: workflowerror.TimeoutTypeScheduleToClose},
			c.taskState())
	}

	switch event.EventType {
	case history.EventTypeWorkflowTaskScheduled:
		c.workflowTask.HandleScheduled()
		return nil
	case history.EventTypeWorkflowTaskCompleted:
		c.workflowTask.HandleCompleted()
		return nil
	case history.EventTypeWorkflowTaskFailed:
		c.workflowTask.HandleFailed()
		return nil
	case history.EventTypeWorkflowTaskTimedOut:
		c.workflowTask.HandleTimedOut()
		return nil
	case history.EventTypeWorkflowExecutionTerminated:
		c.workflowFinished = true
		return nil
	}

	id, ok := event.InitiatingEventID()
	if !ok {
		return fmt.Errorf("no initiating event id on event %s", event.EventType)
	}
	machine, found := c.stateMachines[id]
	if !found {
		return workflowerror.NewNonDeterministicError(
			"event %s references unknown initiating event id %d", event.EventType, id)
	}
	if err := machine.HandleEvent(event); err != nil {
		return err
	}
	if machine.IsFinalState() {
		delete(c.stateMachines, id)
	}
	return nil
}

func (c *Coordinator) deliverSignal(name string, input []byte) {
	waiters := c.signalWaiters[name]
	if len(waiters) > 0 {
		waiter := waiters[0]
		c.signalWaiters[name] = waiters[1:]
		waiter.Settle(input, nil)
		return
	}
	c.signalBuffers[name] = append(c.signalBuffers[name], input)
}

// onWorkflowTaskStarted is the WorkflowTask machine's StartedCallback: it
// advances CurrentStartedEventID, pins the deterministic clock, and lets
// the scheduler run so freshly unblocked workflow code executes before the
// task's commands are prepared.
func (c *Coordinator) onWorkflowTaskStarted(eventID int64, currentTimeMillis int64) error {
	c.currentStartedEventID = eventID
	c.clock.Update(time.UnixMilli(currentTimeMillis))
	// The replay flag must be current before code runs: operations invoked
	// by the live task (SideEffect, local activities) behave differently
	// under replay.
	if c.currentStartedEventID >= c.previousStartedEventID && c.replaying {
		c.replaying = false
		c.pendingLocalActivities = append(c.pendingLocalActivities, c.deferredLocalActivities...)
		c.deferredLocalActivities = nil
	}
	if err := c.runEventLoop(); err != nil {
		c.logger.Error("workflow thread error", tag.Error(err), tag.EventID(eventID))
		return err
	}
	// Commands the freshly unblocked code produced must be on the
	// authoritative queue before this batch's later command events try to
	// match them.
	return c.PrepareCommands()
}

// runEventLoop drives the Dispatcher with inEventLoop held true for the
// duration; this is the guard every public operation checks.
func (c *Coordinator) runEventLoop() error {
	if c.inEventLoop {
		return nil
	}
	c.inEventLoop = true
	defer func() { c.inEventLoop = false }()
	return c.dispatcher.ExecuteUntilAllBlocked()
}

// requireEventLoop panics if called from outside the event loop; public
// operations are only legal from workflow code running on the dispatcher.
func (c *Coordinator) requireEventLoop() {
	if !c.inEventLoop {
		panic("coordinator: operation called outside the workflow event loop")
	}
}

// nextID hands out the monotonically increasing counter backing
// RandomUUID/NewRandom and default activity/timer id generation.
func (c *Coordinator) nextID() int64 {
	c.idCounter++
	return c.idCounter
}

func (c *Coordinator) enqueue(cmd history.Command, machine entity.Machine) *entity.CancellableCommand {
	cc := &entity.CancellableCommand{Command: cmd, Machine: machine}
	c.cancellableCommands = append(c.cancellableCommands, cc)
	return cc
}

func (c *Coordinator) validateTerminal(next history.CommandType) error {
	return decision.ValidateTerminalCommand(c.emittedCommandTypes, next)
}

// PrepareCommands drains cancellableCommands onto the authoritative commands
// queue, notifying each machine via HandleCommand. A machine's HandleCommand
// may itself run workflow callbacks that schedule more commands
// (side-effect/version/local-activity completions), hence the preparing
// re-entry guard: a nested call returns immediately and relies on the outer
// call's loop to keep draining.
func (c *Coordinator) PrepareCommands() error {
	if c.preparing {
		return nil
	}
	c.preparing = true
	defer func() { c.preparing = false }()

	for len(c.cancellableCommands) > 0 {
		batch := c.cancellableCommands
		c.cancellableCommands = nil
		for _, cc := range batch {
			if cc.Cancelled {
				continue
			}
			if !cc.Command.CommandType.IsMarker() {
				if err := c.validateTerminal(cc.Command.CommandType); err != nil {
					return err
				}
				c.emittedCommandTypes = append(c.emittedCommandTypes, cc.Command.CommandType)
			}
			c.commands = append(c.commands, cc)
			if err := cc.Machine.HandleCommand(); err != nil {
				return err
			}
		}
	}
	return nil
}

// DrainCommands returns, in FIFO order, the non-cancelled commands not yet
// handed to the transport, and marks them shipped. Shipped commands stay on
// the queue so their echo events can still be matched in a later batch.
// Callers must have already called PrepareCommands (handleEventsBatch does
// this automatically at the end of every batch).
func (c *Coordinator) DrainCommands() []history.Command {
	out := make([]history.Command, 0, len(c.commands))
	for _, cc := range c.commands {
		if cc.Cancelled || cc.Shipped {
			continue
		}
		cc.Shipped = true
		out = append(out, cc.Command)
	}
	c.mirrorAudit(out)
	return out
}

// DrainLocalActivities returns the local activities awaiting dispatch to a
// local worker and clears the list. Results come back through
// HandleLocalActivityCompletion.
func (c *Coordinator) DrainLocalActivities() []ExecuteLocalActivityParameters {
	out := c.pendingLocalActivities
	c.pendingLocalActivities = nil
	return out
}

// mirrorAudit offers one finalized workflow task's shipped commands to the
// Auditor. Replay-suppressed: commands reconciled against recorded events
// are never drained, and an explicit drain mid-replay stays silent too.
func (c *Coordinator) mirrorAudit(cmds []history.Command) {
	if c.replaying || len(cmds) == 0 {
		return
	}
	c.metrics.Inc("replay.workflow_task_finalized", nil)
	c.auditor.Publish(AuditRecord{
		RunID:                      c.runID,
		WorkflowTaskStartedEventID: c.workflowTaskStartedEventID,
		Commands:                   cmds,
	})
}
