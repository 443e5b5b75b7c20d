// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

package entity

import (
	"fmt"

	"github.com/xdblab/wfreplay/internal/history"
	"github.com/xdblab/wfreplay/internal/statemachine"
	"github.com/xdblab/wfreplay/internal/workflowerror"
)

const (
	versionStateCreated statemachine.State = iota
	versionStateRecorded
)

const (
	versionTriggerRecord statemachine.Trigger = iota
	versionTriggerMarkerEvent
)

var versionDefinition = statemachine.NewBuilder(versionStateCreated, versionStateRecorded).
	Add(versionStateCreated, versionTriggerRecord, versionStateRecorded, nil).
	// A marker event for this changeID that arrives with no matching pending
	// command (code used to call GetVersion here and no longer does) is
	// absorbed here without raising a determinism error.
	Add(versionStateRecorded, versionTriggerMarkerEvent, versionStateRecorded, nil).
	Build()

// Version is the entity state machine backing Workflow.GetVersion, keyed by
// changeID.
type Version struct {
	state    statemachine.State
	changeID string
	Version  int32
	sink     StateMachineSink
}

// NewVersion resolves Version for changeID. If resolved is non-nil, this is
// a repeat call within the same run (live or replay) and the already
// recorded value is reused verbatim with no new command. Otherwise,
// preloadedVersion (non-nil only during replay, from the batch's Version
// marker for this changeID) is used if present; failing that, maxSupported
// is recorded as a fresh marker — the same path taken on first live
// execution.
func NewVersion(
	changeID string,
	minSupported, maxSupported int32,
	resolved *int32,
	preloadedVersion *int32,
	commandSink CommandSink,
	sink StateMachineSink,
) (*Version, error) {
	v := &Version{state: versionStateCreated, changeID: changeID, sink: sink}

	switch {
	case resolved != nil:
		v.Version = *resolved
	case preloadedVersion != nil:
		v.Version = *preloadedVersion
	default:
		v.Version = maxSupported
		commandSink(history.Command{
			CommandType: history.CommandTypeRecordMarker,
			Attributes: &history.MarkerRecordedAttributes{
				MarkerName: history.MarkerNameVersion,
				Details: map[string]any{
					"details": &history.VersionMarkerDetails{ChangeID: changeID, Version: v.Version},
				},
			},
		}, v)
	}
	v.transition(versionTriggerRecord)

	if v.Version < minSupported || v.Version > maxSupported {
		return v, &workflowerror.ApplicationFailure{
			Type: "non-retryable-change-id-error",
			Message: fmt.Sprintf("version %d for changeID %q is outside supported range [%d, %d]",
				v.Version, changeID, minSupported, maxSupported),
			NonRetryable: true,
		}
	}
	return v, nil
}

func (v *Version) transition(trigger statemachine.Trigger) {
	next, ok, _ := versionDefinition.Fire(v.state, trigger)
	if ok {
		if v.sink != nil {
			v.sink("Version", int(v.state), int(next), int(trigger))
		}
		v.state = next
	}
}

// HandleEvent absorbs a version marker that has no matching pending
// command: see versionTriggerMarkerEvent.
func (v *Version) HandleEvent(event *history.HistoryEvent) error {
	v.transition(versionTriggerMarkerEvent)
	return nil
}

func (v *Version) HandleCommand() error { return nil }
func (v *Version) Cancel() error        { return nil }

func (v *Version) IsFinalState() bool {
	return versionDefinition.IsFinal(v.state)
}
