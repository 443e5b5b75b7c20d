// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"time"

	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
)

const (
	localActivityStateCreated statemachine.State = iota
	localActivityStateMarkerRecorded
)

const (
	localActivityTriggerRecord statemachine.Trigger = iota
)

var localActivityDefinition = statemachine.NewBuilder(localActivityStateCreated, localActivityStateMarkerRecorded).
	Add(localActivityStateCreated, localActivityTriggerRecord, localActivityStateMarkerRecorded, nil).
	Build()

// LocalActivity is the entity state machine backing
// ScheduleLocalActivityTask. Unlike Activity, scheduling never enqueues a
// command of its own; a RecordMarker command carrying the full outcome is
// appended only once the local activity has actually completed. During
// replay the coordinator matches by ActivityID rather than by queue
// position (spec section 4.B), since there is no earlier "scheduled"
// command event to align against.
type LocalActivity struct {
	state        statemachine.State
	activityID   string
	activityType string
	Result       []byte
	Err          error
	sink         StateMachineSink
}

// NewLocalActivity resolves the machine's outcome. During replay,
// preloaded (the matching LocalActivityMarkerDetails found by ActivityID in
// the batch) is used verbatim. During live execution, result/failure/attempt
// carry the outcome of the local dispatch performed by the caller (the
// local-worker façade is out of scope for the replay core itself), and a
// fresh marker is recorded.
func NewLocalActivity(
	activityID, activityType string,
	replaying bool,
	preloaded *history.LocalActivityMarkerDetails,
	result []byte,
	failure *history.Failure,
	attempt int32,
	backoff time.Duration,
	replayTimeMillis int64,
	commandSink CommandSink,
	sink StateMachineSink,
) *LocalActivity {
	l := &LocalActivity{state: localActivityStateCreated, activityID: activityID, activityType: activityType, sink: sink}

	if replaying && preloaded != nil {
		l.Result = preloaded.Result
		if preloaded.Failure != nil {
			l.Err = failureToError(preloaded.Failure)
		}
	} else {
		l.Result = result
		if failure != nil {
			l.Err = failureToError(failure)
		}
		commandSink(history.Command{
			CommandType: history.CommandTypeRecordMarker,
			Attributes: &history.MarkerRecordedAttributes{
				MarkerName: history.MarkerNameLocalActivity,
				Details: map[string]any{
					"details": &history.LocalActivityMarkerDetails{
						ActivityID:       activityID,
						ActivityType:     activityType,
						Result:           result,
						Failure:          failure,
						ReplayTimeMillis: replayTimeMillis,
						Attempt:          attempt,
						Backoff:          backoff,
					},
				},
			},
		}, l)
	}
	l.transition(localActivityTriggerRecord)
	return l
}

func (l *LocalActivity) transition(trigger statemachine.Trigger) {
	next, ok, _ := localActivityDefinition.Fire(l.state, trigger)
	if ok {
		if l.sink != nil {
			l.sink("LocalActivity", int(l.state), int(next), int(trigger))
		}
		l.state = next
	}
}

// HandleEvent is invoked only for coordinator bookkeeping once the marker
// event is matched by ActivityID; the outcome was already resolved at
// construction time.
func (l *LocalActivity) HandleEvent(event *history.HistoryEvent) error { return nil }
func (l *LocalActivity) HandleCommand() error                         { return nil }
func (l *LocalActivity) Cancel() error                                { return nil }

func (l *LocalActivity) IsFinalState() bool {
	return localActivityDefinition.IsFinal(l.state)
}

func (l *LocalActivity) ActivityID() string { return l.activityID }
