// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdblab/wfreplay/internal/coroutine"
	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/workflowerror"
)

func ev(id int64, t history.EventType, attrs any) *history.HistoryEvent {
	return &history.HistoryEvent{EventID: id, EventType: t, Attributes: attrs}
}

func started(id int64, timeMillis int64) *history.HistoryEvent {
	return ev(id, history.EventTypeWorkflowTaskStarted, &history.WorkflowTaskStartedAttributes{CurrentTimeMillis: timeMillis})
}

// feed delivers one service round: all events with hasNext until the last.
func feed(t *testing.T, c *Coordinator, events ...*history.HistoryEvent) {
	t.Helper()
	for i, event := range events {
		require.NoError(t, c.HandleEvent(event, i < len(events)-1))
	}
}

func feedErr(c *Coordinator, events ...*history.HistoryEvent) error {
	for i, event := range events {
		if err := c.HandleEvent(event, i < len(events)-1); err != nil {
			return err
		}
	}
	return nil
}

func commandTypes(cmds []history.Command) []history.CommandType {
	out := make([]history.CommandType, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, cmd.CommandType)
	}
	return out
}

func timerWorkflow(ctx *WorkflowContext) ([]byte, error) {
	_, err := ctx.Await(ctx.Engine().NewTimer(5 * time.Second))
	return nil, err
}

// timerHistory is the full history the timer-only workflow produces:
// schedule in task one, fire and complete in task two.
func timerHistory() []*history.HistoryEvent {
	return []*history.HistoryEvent{
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{
			WorkflowID: "wf-1", WorkflowType: "timer-only", RunID: "run-1",
		}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeTimerStarted, &history.TimerStartedAttributes{TimerID: "1", Duration: 5 * time.Second}),
		ev(6, history.EventTypeWorkflowTaskScheduled, nil),
		started(7, 6000),
		ev(8, history.EventTypeTimerFired, &history.TimerFiredAttributes{TimerID: "1", StartedEventID: 5}),
	}
}

func TestTimerOnlyWorkflow(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(timerWorkflow)
	h := timerHistory()

	feed(t, c, h[0], h[1], h[2])
	cmds := c.DrainCommands()
	require.Equal(t, []history.CommandType{history.CommandTypeStartTimer}, commandTypes(cmds))
	attrs := cmds[0].Attributes.(*history.TimerStartedAttributes)
	assert.Equal(t, "1", attrs.TimerID)
	assert.Equal(t, 5*time.Second, attrs.Duration)

	feed(t, c, h[3], h[4], h[5], h[6], h[7])
	cmds = c.DrainCommands()
	assert.Equal(t, []history.CommandType{history.CommandTypeCompleteWorkflowExecution}, commandTypes(cmds))
}

func TestTimerOnlyWorkflowReplayIsDeterministic(t *testing.T) {
	// replaying a prefix regenerates exactly the prefix's commands
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(timerWorkflow)
	require.NoError(t, c.SetPreviousStartedEventID(3))
	feed(t, c, timerHistory()[:3]...)
	assert.Equal(t, []history.CommandType{history.CommandTypeStartTimer}, commandTypes(c.DrainCommands()))

	// replaying the full history reconciles every command and regenerates
	// the final task's completion
	c2 := New(Options{RunID: "run-1"})
	c2.RegisterWorkflowRoot(timerWorkflow)
	require.NoError(t, c2.SetPreviousStartedEventID(7))
	feed(t, c2, timerHistory()...)
	assert.Equal(t, []history.CommandType{history.CommandTypeCompleteWorkflowExecution}, commandTypes(c2.DrainCommands()))
	assert.False(t, c2.IsReplaying())
}

func TestReplayFlagFlipsAtPreviousStartedEvent(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(timerWorkflow)
	require.NoError(t, c.SetPreviousStartedEventID(7))
	assert.True(t, c.IsReplaying())

	h := timerHistory()
	feed(t, c, h[:3]...)
	assert.True(t, c.IsReplaying())
	feed(t, c, h[3:7]...)
	feed(t, c, h[7])
	assert.False(t, c.IsReplaying())
}

func TestDuplicateEventDeliveryIsNoop(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(timerWorkflow)
	h := timerHistory()
	feed(t, c, h[0], h[1], h[2])
	require.Equal(t, 1, len(c.DrainCommands()))

	// redelivering already-handled events changes nothing
	require.NoError(t, c.HandleEvent(h[1], false))
	require.NoError(t, c.HandleEvent(h[2], false))
	assert.Empty(t, c.DrainCommands())
}

func TestProgressRegressionIsFatal(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(timerWorkflow)
	h := timerHistory()
	feed(t, c, h[0], h[1], h[2])

	err := c.SetPreviousStartedEventID(2)
	require.Error(t, err)
	regression, ok := err.(*workflowerror.ProgressRegressionError)
	require.True(t, ok)
	assert.Equal(t, int64(2), regression.PreviousStartedEventID)
	assert.Equal(t, int64(3), regression.CurrentStartedEventID)
}

func TestNonDeterministicCommandMismatch(t *testing.T) {
	auditor := &recordingAuditor{}
	c := New(Options{RunID: "run-1", Auditor: auditor})
	// this code schedules an activity, but the recorded history contains a
	// timer: replay must refuse
	c.RegisterWorkflowRoot(func(ctx *WorkflowContext) ([]byte, error) {
		p := ctx.Engine().ScheduleActivityTask(&history.ActivityTaskScheduledAttributes{
			ActivityID: "act-1", ActivityType: "uploader",
		}, history.CancellationTypeTryCancel)
		_, err := ctx.Await(p)
		return nil, err
	})
	h := timerHistory()
	feed(t, c, h[0], h[1], h[2])

	err := feedErr(c, h[3], h[4], h[5], h[6], h[7])
	require.Error(t, err)
	assert.IsType(t, &workflowerror.NonDeterministicError{}, err)

	// the divergence itself is audited, with no commands attached
	require.Len(t, auditor.records, 1)
	assert.True(t, auditor.records[0].NonDeterministic)
	assert.Empty(t, auditor.records[0].Commands)
	assert.Equal(t, "run-1", auditor.records[0].RunID)
}

func TestUnknownInitiatingEventIsNonDeterministic(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(timerWorkflow)
	h := timerHistory()
	feed(t, c, h[0], h[1], h[2])

	err := feedErr(c,
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeTimerStarted, &history.TimerStartedAttributes{TimerID: "1", Duration: 5 * time.Second}),
		ev(6, history.EventTypeTimerFired, &history.TimerFiredAttributes{TimerID: "99", StartedEventID: 42}),
	)
	require.Error(t, err)
	assert.IsType(t, &workflowerror.NonDeterministicError{}, err)
}

func TestAbandonCancelEmitsNoCancelRequest(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(func(ctx *WorkflowContext) ([]byte, error) {
		engine := ctx.Engine()
		p := engine.ScheduleActivityTask(&history.ActivityTaskScheduledAttributes{
			ActivityID: "act-1", ActivityType: "slow",
		}, history.CancellationTypeAbandon)
		_, err := ctx.Await(coroutine.Any(p, engine.CancelRequestedPromise()))
		if err != nil {
			p.Cancel()
			return nil, err
		}
		return nil, nil
	})

	feed(t, c,
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
	)
	require.Equal(t, []history.CommandType{history.CommandTypeScheduleActivityTask}, commandTypes(c.DrainCommands()))

	feed(t, c,
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeActivityTaskScheduled, &history.ActivityTaskScheduledAttributes{ActivityID: "act-1", ActivityType: "slow"}),
		ev(6, history.EventTypeWorkflowExecutionCancelRequested, &history.WorkflowExecutionCancelRequestedAttributes{Cause: "operator"}),
		ev(7, history.EventTypeWorkflowTaskScheduled, nil),
		started(8, 2000),
	)
	cmds := c.DrainCommands()
	assert.Equal(t, []history.CommandType{history.CommandTypeCancelWorkflowExecution}, commandTypes(cmds))
	for _, cmd := range cmds {
		assert.NotEqual(t, history.CommandTypeRequestCancelActivityTask, cmd.CommandType)
	}
}

func TestRemovedGetVersionMarkerIsAbsorbed(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	// old code called GetVersion("foo") here; this code no longer does
	c.RegisterWorkflowRoot(func(ctx *WorkflowContext) ([]byte, error) {
		return []byte("done"), nil
	})
	require.NoError(t, c.SetPreviousStartedEventID(3))

	err := feedErr(c,
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeMarkerRecorded, &history.MarkerRecordedAttributes{
			MarkerName: history.MarkerNameVersion,
			Details:    map[string]any{"details": &history.VersionMarkerDetails{ChangeID: "foo", Version: 1}},
		}),
		ev(6, history.EventTypeWorkflowExecutionCompleted, &history.WorkflowExecutionCompletedAttributes{Result: []byte("done")}),
	)
	require.NoError(t, err)
}

func TestGetVersionReplayResolvesRecordedValue(t *testing.T) {
	versionWorkflow := func(observed *[]int32) WorkflowFunc {
		return func(ctx *WorkflowContext) ([]byte, error) {
			v, err := ctx.Await(ctx.Engine().GetVersion("change-1", 0, 2))
			if err != nil {
				return nil, err
			}
			*observed = append(*observed, v.(int32))
			_, err = ctx.Await(ctx.Engine().NewTimer(5 * time.Second))
			return nil, err
		}
	}

	// first execution records maxSupported
	var liveObserved []int32
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(versionWorkflow(&liveObserved))
	feed(t, c,
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
	)
	assert.Equal(t, []history.CommandType{
		history.CommandTypeRecordMarker,
		history.CommandTypeStartTimer,
	}, commandTypes(c.DrainCommands()))
	assert.Equal(t, []int32{2}, liveObserved)

	// replay resolves the version the original run recorded, not the code's
	// current maximum
	var replayObserved []int32
	c2 := New(Options{RunID: "run-1"})
	c2.RegisterWorkflowRoot(versionWorkflow(&replayObserved))
	require.NoError(t, c2.SetPreviousStartedEventID(7))
	feed(t, c2,
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeMarkerRecorded, &history.MarkerRecordedAttributes{
			MarkerName: history.MarkerNameVersion,
			Details:    map[string]any{"details": &history.VersionMarkerDetails{ChangeID: "change-1", Version: 1}},
		}),
		ev(6, history.EventTypeTimerStarted, &history.TimerStartedAttributes{TimerID: "1", Duration: 5 * time.Second}),
	)
	assert.Equal(t, []int32{1}, replayObserved)
}

func TestMutableSideEffectIdempotence(t *testing.T) {
	mutableWorkflow := func(observed *[][]byte) WorkflowFunc {
		return func(ctx *WorkflowContext) ([]byte, error) {
			engine := ctx.Engine()
			fn := func(previous []byte) []byte { return []byte("42") }
			v1, _ := ctx.Await(engine.MutableSideEffect("x", fn))
			*observed = append(*observed, v1.([]byte))
			if _, err := ctx.Await(engine.NewTimer(5 * time.Second)); err != nil {
				return nil, err
			}
			v2, _ := ctx.Await(engine.MutableSideEffect("x", fn))
			*observed = append(*observed, v2.([]byte))
			v3, _ := ctx.Await(engine.MutableSideEffect("x", fn))
			*observed = append(*observed, v3.([]byte))
			return v3.([]byte), nil
		}
	}

	fullHistory := []*history.HistoryEvent{
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeMarkerRecorded, &history.MarkerRecordedAttributes{
			MarkerName: history.MarkerNameMutableSideEffect,
			Details:    map[string]any{"details": &history.MutableSideEffectMarkerDetails{ID: "x", Result: []byte("42")}},
		}),
		ev(6, history.EventTypeTimerStarted, &history.TimerStartedAttributes{TimerID: "1", Duration: 5 * time.Second}),
		ev(7, history.EventTypeTimerFired, &history.TimerFiredAttributes{TimerID: "1", StartedEventID: 6}),
		ev(8, history.EventTypeWorkflowTaskScheduled, nil),
		started(9, 6000),
	}

	// live: exactly one marker recorded across the three calls
	var liveObserved [][]byte
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(mutableWorkflow(&liveObserved))
	feed(t, c, fullHistory[:3]...)
	assert.Equal(t, []history.CommandType{
		history.CommandTypeRecordMarker,
		history.CommandTypeStartTimer,
	}, commandTypes(c.DrainCommands()))

	feed(t, c, fullHistory[3:]...)
	assert.Equal(t, []history.CommandType{history.CommandTypeCompleteWorkflowExecution}, commandTypes(c.DrainCommands()))
	assert.Equal(t, [][]byte{[]byte("42"), []byte("42"), []byte("42")}, liveObserved)

	// replay: all three call sites observe the single recorded value
	var replayObserved [][]byte
	c2 := New(Options{RunID: "run-1"})
	c2.RegisterWorkflowRoot(mutableWorkflow(&replayObserved))
	require.NoError(t, c2.SetPreviousStartedEventID(9))
	feed(t, c2, fullHistory...)
	assert.Equal(t, []history.CommandType{history.CommandTypeCompleteWorkflowExecution}, commandTypes(c2.DrainCommands()))
	assert.Equal(t, [][]byte{[]byte("42"), []byte("42"), []byte("42")}, replayObserved)
}

func signalWorkflow(ctx *WorkflowContext) ([]byte, error) {
	engine := ctx.Engine()
	first, err := ctx.Await(engine.ReceiveSignal("greeting"))
	if err != nil {
		return nil, err
	}
	second, err := ctx.Await(engine.ReceiveSignal("greeting"))
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, first.([]byte)...), second.([]byte)...), nil
}

func signalHistory() []*history.HistoryEvent {
	return []*history.HistoryEvent{
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeWorkflowExecutionSignaled, &history.WorkflowExecutionSignaledAttributes{SignalName: "greeting", Input: []byte("Hello ")}),
		ev(6, history.EventTypeWorkflowTaskScheduled, nil),
		started(7, 2000),
		ev(8, history.EventTypeWorkflowTaskCompleted, nil),
		ev(9, history.EventTypeWorkflowExecutionSignaled, &history.WorkflowExecutionSignaledAttributes{SignalName: "greeting", Input: []byte("World!")}),
		ev(10, history.EventTypeWorkflowTaskScheduled, nil),
		started(11, 3000),
	}
}

func TestSignalOrdering(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(signalWorkflow)
	h := signalHistory()

	feed(t, c, h[:3]...)
	assert.Empty(t, c.DrainCommands())
	feed(t, c, h[3:7]...)
	assert.Empty(t, c.DrainCommands())
	feed(t, c, h[7:]...)

	cmds := c.DrainCommands()
	require.Equal(t, []history.CommandType{history.CommandTypeCompleteWorkflowExecution}, commandTypes(cmds))
	result := cmds[0].Attributes.(*history.WorkflowExecutionCompletedAttributes).Result
	assert.Equal(t, []byte("Hello World!"), result)
}

func TestSignalOrderingReplay(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(signalWorkflow)
	require.NoError(t, c.SetPreviousStartedEventID(11))
	feed(t, c, signalHistory()...)

	cmds := c.DrainCommands()
	require.Equal(t, []history.CommandType{history.CommandTypeCompleteWorkflowExecution}, commandTypes(cmds))
	result := cmds[0].Attributes.(*history.WorkflowExecutionCompletedAttributes).Result
	assert.Equal(t, []byte("Hello World!"), result)
}

func TestRandomnessIsReproducible(t *testing.T) {
	run := func() (uuids []string, numbers []int64) {
		c := New(Options{RunID: "run-7"})
		c.RegisterWorkflowRoot(func(ctx *WorkflowContext) ([]byte, error) {
			engine := ctx.Engine()
			for i := 0; i < 3; i++ {
				uuids = append(uuids, engine.RandomUUID().String())
			}
			r := engine.NewRandom()
			for i := 0; i < 3; i++ {
				numbers = append(numbers, r.Int63())
			}
			return nil, nil
		})
		feed(t, c,
			ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-7"}),
			ev(2, history.EventTypeWorkflowTaskScheduled, nil),
			started(3, 1000),
		)
		return uuids, numbers
	}

	uuids1, numbers1 := run()
	uuids2, numbers2 := run()
	assert.Equal(t, uuids1, uuids2)
	assert.Equal(t, numbers1, numbers2)
	assert.NotEqual(t, uuids1[0], uuids1[1])
}

func TestClockIsMonotonic(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(signalWorkflow)
	h := signalHistory()
	feed(t, c, h[:3]...)
	assert.Equal(t, int64(1000), c.CurrentTimeMillis())

	// a started event with an older timestamp never moves the clock back
	feed(t, c,
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeWorkflowExecutionSignaled, &history.WorkflowExecutionSignaledAttributes{SignalName: "greeting", Input: []byte("x")}),
		ev(6, history.EventTypeWorkflowTaskScheduled, nil),
		started(7, 500),
	)
	assert.Equal(t, int64(1000), c.CurrentTimeMillis())
}

func TestWorkflowExecutionTimedOutIsTerminal(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(timerWorkflow)
	h := timerHistory()
	feed(t, c, h[0], h[1], h[2])

	err := feedErr(c,
		ev(4, history.EventTypeWorkflowExecutionTimedOut, &history.WorkflowExecutionTimedOutAttributes{TimeoutType: "schedule-to-close"}),
	)
	require.Error(t, err)
	internal, ok := err.(*workflowerror.InternalWorkflowTaskError)
	require.True(t, ok)
	assert.IsType(t, &workflowerror.TimeoutFailure{}, internal.Cause)
}

func TestOperationsPanicOutsideEventLoop(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	assert.Panics(t, func() { c.NewTimer(time.Second) })
	assert.Panics(t, func() { c.SideEffect(func() []byte { return nil }) })
	assert.Panics(t, func() { c.CompleteWorkflow(nil) })
}

type timerStub struct {
	c *Coordinator
}

func (s *timerStub) IsWorkflowStub() {}

func (s *timerStub) Sleep(d time.Duration) *coroutine.Promise {
	return s.c.NewTimer(d)
}

func TestExecuteAsyncDispatchesStubMethods(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	var stubErr error
	c.RegisterWorkflowRoot(func(ctx *WorkflowContext) ([]byte, error) {
		engine := ctx.Engine()
		p := engine.ExecuteAsync(&timerStub{c: engine}, "Sleep", 5*time.Second)
		_, err := ctx.Await(p)
		if err != nil {
			return nil, err
		}
		// a plain closure must be rejected, not dispatched
		_, stubErr = ctx.Await(engine.ExecuteAsync(func() {}, "anything"))
		return nil, nil
	})
	h := timerHistory()
	feed(t, c, h[0], h[1], h[2])
	assert.Equal(t, []history.CommandType{history.CommandTypeStartTimer}, commandTypes(c.DrainCommands()))

	feed(t, c, h[3], h[4], h[5], h[6], h[7])
	assert.Equal(t, []history.CommandType{history.CommandTypeCompleteWorkflowExecution}, commandTypes(c.DrainCommands()))
	assert.Error(t, stubErr)
}

type recordingAuditor struct {
	records []AuditRecord
}

func (r *recordingAuditor) Publish(record AuditRecord) {
	r.records = append(r.records, record)
}

func TestAuditorSuppressedDuringReplay(t *testing.T) {
	// live execution publishes once per finalized workflow task
	live := &recordingAuditor{}
	c := New(Options{RunID: "run-1", Auditor: live})
	c.RegisterWorkflowRoot(timerWorkflow)
	h := timerHistory()
	feed(t, c, h[:3]...)
	c.DrainCommands()
	feed(t, c, h[3:]...)
	c.DrainCommands()
	require.Len(t, live.records, 2)
	assert.Equal(t, "run-1", live.records[0].RunID)

	// replay publishes only for the final, freshly executed task
	replayed := &recordingAuditor{}
	c2 := New(Options{RunID: "run-1", Auditor: replayed})
	c2.RegisterWorkflowRoot(timerWorkflow)
	require.NoError(t, c2.SetPreviousStartedEventID(7))
	feed(t, c2, timerHistory()...)
	c2.DrainCommands()
	require.Len(t, replayed.records, 1)
	assert.Equal(t, []history.CommandType{history.CommandTypeCompleteWorkflowExecution},
		commandTypes(replayed.records[0].Commands))
}

func TestSideEffectRecordsOnceAndReplaysRecordedValue(t *testing.T) {
	sideEffectWorkflow := func(observed *[][]byte, calls *int) WorkflowFunc {
		return func(ctx *WorkflowContext) ([]byte, error) {
			engine := ctx.Engine()
			v, _ := ctx.Await(engine.SideEffect(func() []byte {
				*calls++
				return []byte("generated")
			}))
			*observed = append(*observed, v.([]byte))
			_, err := ctx.Await(engine.NewTimer(5 * time.Second))
			return nil, err
		}
	}

	var liveObserved [][]byte
	liveCalls := 0
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(sideEffectWorkflow(&liveObserved, &liveCalls))
	feed(t, c,
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
	)
	assert.Equal(t, []history.CommandType{
		history.CommandTypeRecordMarker,
		history.CommandTypeStartTimer,
	}, commandTypes(c.DrainCommands()))
	assert.Equal(t, 1, liveCalls)
	assert.Equal(t, [][]byte{[]byte("generated")}, liveObserved)

	// replay: the function never runs; the recorded value is observed
	var replayObserved [][]byte
	replayCalls := 0
	c2 := New(Options{RunID: "run-1"})
	c2.RegisterWorkflowRoot(sideEffectWorkflow(&replayObserved, &replayCalls))
	require.NoError(t, c2.SetPreviousStartedEventID(7))
	feed(t, c2,
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeMarkerRecorded, &history.MarkerRecordedAttributes{
			MarkerName: history.MarkerNameSideEffect,
			Details:    map[string]any{"details": &history.SideEffectMarkerDetails{SideEffectID: 1, Result: []byte("recorded")}},
		}),
		ev(6, history.EventTypeTimerStarted, &history.TimerStartedAttributes{TimerID: "2", Duration: 5 * time.Second}),
	)
	assert.Equal(t, 0, replayCalls)
	assert.Equal(t, [][]byte{[]byte("recorded")}, replayObserved)
}

func TestLocalActivityCompletionRecordsMarkerAndReplayMatchesByActivityID(t *testing.T) {
	localWorkflow := func(observed *[][]byte) WorkflowFunc {
		return func(ctx *WorkflowContext) ([]byte, error) {
			v, err := ctx.Await(ctx.Engine().ScheduleLocalActivityTask("la-1", "lookup", []byte("in")))
			if err != nil {
				return nil, err
			}
			*observed = append(*observed, v.([]byte))
			return v.([]byte), nil
		}
	}

	var liveObserved [][]byte
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(localWorkflow(&liveObserved))
	feed(t, c,
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
	)
	params := c.DrainLocalActivities()
	require.Len(t, params, 1)
	assert.Equal(t, "la-1", params[0].ActivityID)
	assert.Empty(t, c.DrainCommands())

	require.NoError(t, c.HandleLocalActivityCompletion("la-1", []byte("out"), nil, 1, 0))
	cmds := c.DrainCommands()
	assert.Equal(t, []history.CommandType{
		history.CommandTypeRecordMarker,
		history.CommandTypeCompleteWorkflowExecution,
	}, commandTypes(cmds))
	assert.Equal(t, [][]byte{[]byte("out")}, liveObserved)

	// replay: the marker is matched by activityId, the worker is never asked
	var replayObserved [][]byte
	c2 := New(Options{RunID: "run-1"})
	c2.RegisterWorkflowRoot(localWorkflow(&replayObserved))
	require.NoError(t, c2.SetPreviousStartedEventID(4))
	feed(t, c2,
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
		ev(4, history.EventTypeWorkflowTaskCompleted, nil),
		ev(5, history.EventTypeMarkerRecorded, &history.MarkerRecordedAttributes{
			MarkerName: history.MarkerNameLocalActivity,
			Details: map[string]any{"details": &history.LocalActivityMarkerDetails{
				ActivityID: "la-1", ActivityType: "lookup", Result: []byte("out"), Attempt: 1,
			}},
		}),
		ev(6, history.EventTypeWorkflowExecutionCompleted, &history.WorkflowExecutionCompletedAttributes{Result: []byte("out")}),
	)
	assert.Empty(t, c2.DrainLocalActivities())
	assert.Equal(t, [][]byte{[]byte("out")}, replayObserved)
}

func TestTerminalCommandsAreMutuallyExclusive(t *testing.T) {
	c := New(Options{RunID: "run-1"})
	c.RegisterWorkflowRoot(func(ctx *WorkflowContext) ([]byte, error) {
		ctx.Engine().CompleteWorkflow([]byte("first"))
		ctx.Engine().FailWorkflow(&history.Failure{Type: "late"})
		return nil, nil
	})
	err := feedErr(c,
		ev(1, history.EventTypeWorkflowExecutionStarted, &history.WorkflowExecutionStartedAttributes{RunID: "run-1"}),
		ev(2, history.EventTypeWorkflowTaskScheduled, nil),
		started(3, 1000),
	)
	require.Error(t, err)
	assert.IsType(t, &workflowerror.InternalWorkflowTaskError{}, err)
}
