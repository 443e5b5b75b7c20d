// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package entity implements the per-operation finite state machines that
// back every durable call a workflow can make: activities, timers, child
// workflows, signals, markers, and the workflow's own lifecycle commands.
// Each machine is built on top of internal/statemachine.Definition and
// drives exactly one CancellableCommand through the coordinator's queues.
package entity

import (
	"github.com/xdblab/wfreplay/internal/history"
)

// Machine is the common interface the coordinator drives every entity
// state machine through. The coordinator never knows which of the fifteen
// variants it's holding.
type Machine interface {
	// HandleEvent feeds a history event that was routed to this machine
	// (either a matched command event or a follow-up event looked up by
	// initiating event id).
	HandleEvent(event *history.HistoryEvent) error
	// HandleCommand notifies the machine that its CancellableCommand has
	// just been finalized onto the coordinator's authoritative commands
	// queue. Every machine in this package returns nil here: SideEffect,
	// MutableSideEffect, Version and LocalActivity settle their results in
	// their constructors.
	HandleCommand() error
	// Cancel requests cancellation from workflow code. Behavior depends on
	// the machine's current state: see the per-variant doc comments.
	Cancel() error
	// IsFinalState reports whether the machine has reached a terminal
	// state and can be dropped from the coordinator's event-id map.
	IsFinalState() bool
}

// CommandSink is how a machine hands a freshly created command to its
// owning coordinator. The coordinator appends it to cancellableCommands and
// returns a *CancellableCommand the machine keeps a reference to, so later
// cancellation can flip the Cancelled flag before the command ships.
type CommandSink func(cmd history.Command, machine Machine) *CancellableCommand

// StateMachineSink observes every state transition, for tests and for the
// replay-suppressed audit/metrics hook (internal/replayutil). It must never
// be used to reconstruct replay state.
type StateMachineSink func(machineKind string, from, to int, trigger int)

// CancellableCommand wraps a single emitted Command with the bookkeeping
// the coordinator needs: whether it has been withdrawn by workflow code
// before it ever reached the wire, and which machine to notify when the
// matching event arrives.
type CancellableCommand struct {
	Command   history.Command
	Cancelled bool
	// Shipped is set once the command has been handed to the transport.
	// The command stays on the coordinator's queue after shipping so that
	// its echo event can still be matched against it in a later batch.
	Shipped bool
	Machine Machine
}

// Cancel marks the command withdrawn. A cancelled command is skipped by the
// coordinator when matching the head of the commands queue against an
// incoming command event, and is never shipped to the transport.
func (c *CancellableCommand) Cancel() {
	c.Cancelled = true
}
