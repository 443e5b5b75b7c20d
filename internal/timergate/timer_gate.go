// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package timergate schedules the wall-clock wakeups behind simulated
// TimerFired events. The simulator registers each StartTimer command's
// deadline here; the gate arms a single host timer for the earliest one
// and reports, in deadline order, which workflow timer is due, carrying
// the started event id the synthesized TimerFired event must reference.
// Replay determinism is unaffected by any of this: the deterministic
// clock lives in common/clock.EventTimeSource and the timer entity state
// machine, and the gate only decides when the host process wakes up.
package timergate

import (
	"sync"
	"time"

	"github.com/xdblab/wfreplay/common/clock"
	"github.com/xdblab/wfreplay/common/log"
	"github.com/xdblab/wfreplay/common/log/tag"
)

// Fire identifies one workflow timer that reached its deadline.
type Fire struct {
	// TimerID is the workflow timer's id, as carried on the StartTimer
	// command.
	TimerID string
	// StartedEventID is the TIMER_STARTED event the synthesized
	// TIMER_FIRED event must point back to.
	StartedEventID int64
}

type pendingFire struct {
	timerID        string
	startedEventID int64
	fireAt         time.Time
}

// Gate tracks the pending workflow timers of one simulated execution and
// wakes its owner when the earliest deadline passes. One host timer is
// shared by all pending workflow timers; it is re-armed whenever the
// earliest deadline changes.
type Gate struct {
	mu      sync.Mutex
	pending []pendingFire

	timeSource clock.TimeSource
	logger     log.Logger

	timer   *time.Timer
	rearmCh chan struct{}
	fireCh  chan Fire
	closeCh chan struct{}
}

// NewGate starts the gate's wakeup loop. Callers must Close it.
func NewGate(timeSource clock.TimeSource, logger log.Logger) *Gate {
	g := &Gate{
		timeSource: timeSource,
		logger:     logger,
		timer:      time.NewTimer(time.Hour),
		rearmCh:    make(chan struct{}, 1),
		fireCh:     make(chan Fire, 1),
		closeCh:    make(chan struct{}),
	}
	if !g.timer.Stop() {
		<-g.timer.C
	}
	go g.loop()
	return g
}

// Schedule registers a workflow timer to fire after delay. The gate
// re-arms if this deadline is now the earliest.
func (g *Gate) Schedule(timerID string, startedEventID int64, delay time.Duration) {
	g.mu.Lock()
	g.pending = append(g.pending, pendingFire{
		timerID:        timerID,
		startedEventID: startedEventID,
		fireAt:         g.timeSource.Now().Add(delay),
	})
	g.mu.Unlock()
	g.requestRearm()
}

// CancelTimer drops a pending workflow timer, the gate-side effect of a
// CancelTimer command. Reports whether the timer was still pending.
func (g *Gate) CancelTimer(timerID string) bool {
	g.mu.Lock()
	found := false
	kept := g.pending[:0]
	for _, p := range g.pending {
		if p.timerID == timerID {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	g.pending = kept
	g.mu.Unlock()
	if found {
		g.requestRearm()
	}
	return found
}

// FireChan delivers due workflow timers in deadline order. The channel is
// closed by Close.
func (g *Gate) FireChan() <-chan Fire {
	return g.fireCh
}

// Close stops the wakeup loop. Pending timers never fire after Close.
func (g *Gate) Close() {
	close(g.closeCh)
}

func (g *Gate) requestRearm() {
	select {
	case g.rearmCh <- struct{}{}:
	default:
		// a rearm is already queued; the loop recomputes from pending
	}
}

func (g *Gate) loop() {
	defer close(g.fireCh)
	defer g.timer.Stop()
	for {
		g.rearm()
		select {
		case <-g.timer.C:
			for _, fire := range g.takeDue() {
				select {
				case g.fireCh <- fire:
					g.logger.Debug("simulated timer is due", tag.TimerID(fire.TimerID), tag.EventID(fire.StartedEventID))
				case <-g.closeCh:
					return
				}
			}
		case <-g.rearmCh:
		case <-g.closeCh:
			return
		}
	}
}

// rearm points the host timer at the earliest pending deadline, or leaves
// it disarmed when nothing is pending.
func (g *Gate) rearm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.timer.Stop() {
		select {
		case <-g.timer.C:
		default:
		}
	}
	earliest, ok := g.earliestLocked()
	if !ok {
		return
	}
	g.timer.Reset(earliest.Sub(g.timeSource.Now()))
}

func (g *Gate) earliestLocked() (time.Time, bool) {
	if len(g.pending) == 0 {
		return time.Time{}, false
	}
	earliest := g.pending[0].fireAt
	for _, p := range g.pending[1:] {
		if p.fireAt.Before(earliest) {
			earliest = p.fireAt
		}
	}
	return earliest, true
}

// takeDue removes and returns, in deadline order, every pending timer
// whose deadline has passed.
func (g *Gate) takeDue() []Fire {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.timeSource.Now()
	var due []pendingFire
	kept := g.pending[:0]
	for _, p := range g.pending {
		if !p.fireAt.After(now) {
			due = append(due, p)
			continue
		}
		kept = append(kept, p)
	}
	g.pending = kept

	for i := 1; i < len(due); i++ {
		for j := i; j > 0 && due[j].fireAt.Before(due[j-1].fireAt); j-- {
			due[j], due[j-1] = due[j-1], due[j]
		}
	}
	fires := make([]Fire, 0, len(due))
	for _, p := range due {
		fires = append(fires, Fire{TimerID: p.timerID, StartedEventID: p.startedEventID})
	}
	return fires
}
