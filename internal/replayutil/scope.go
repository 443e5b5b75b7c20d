// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: BUSL-1.1

// Package replayutil holds the replay-aware ambient helpers of spec section
// 4.G: a metrics/audit scope that silently discards emission while a
// workflow task is replaying, and the deterministic UUID/random facilities
// backing Workflow.RandomUUID and Workflow.NewRandom.
package replayutil

import (
	"math/rand"

	"github.com/xdblab/wfreplay/common/uuid"
)

// MetricsScope is the ambient metrics reporting surface; the coordinator
// wraps it in a ReplayAwareScope. A long-lived worker that
// replays the same history many times — cache eviction, sticky-queue
// handoff — must never double-count or double-publish what it already
// reported the first time a workflow task executed live.
type MetricsScope interface {
	Inc(name string, tags map[string]string)
	RecordDistribution(name string, value float64, tags map[string]string)
}

// noopScope discards everything; used both as the suppressed branch of
// ReplayAwareScope and as a default when no real scope is configured.
type noopScope struct{}

func (noopScope) Inc(string, map[string]string)                     {}
func (noopScope) RecordDistribution(string, float64, map[string]string) {}

// NoopScope is the shared no-op MetricsScope instance.
var NoopScope MetricsScope = noopScope{}

// ReplayAwareScope wraps an underlying MetricsScope and consults isReplaying
// on every call, routing to NoopScope while it reports true.
type ReplayAwareScope struct {
	underlying  MetricsScope
	isReplaying func() bool
}

// NewReplayAwareScope wraps underlying so that, while isReplaying() is
// true, every call is silently dropped.
func NewReplayAwareScope(underlying MetricsScope, isReplaying func() bool) *ReplayAwareScope {
	if underlying == nil {
		underlying = NoopScope
	}
	return &ReplayAwareScope{underlying: underlying, isReplaying: isReplaying}
}

func (s *ReplayAwareScope) Inc(name string, tags map[string]string) {
	if s.isReplaying() {
		return
	}
	s.underlying.Inc(name, tags)
}

func (s *ReplayAwareScope) RecordDistribution(name string, value float64, tags map[string]string) {
	if s.isReplaying() {
		return
	}
	s.underlying.RecordDistribution(name, value, tags)
}

// DeterministicRandomSeed derives the 16-byte name-based UUID that seeds
// Workflow.NewRandom, over the same runID+counter pair RandomUUID consumes
// (spec section 4.D.8), so the two facilities advance in lockstep with the
// coordinator's idCounter and never diverge between a live run and its
// replay.
func DeterministicRandomSeed(runID string, counter int64) uuid.UUID {
	return uuid.NewDeterministic(runID, counter)
}

// NewDeterministicRandom builds a math/rand source from a deterministic
// UUID, never from the wall clock or process entropy.
func NewDeterministicRandom(seed uuid.UUID) *rand.Rand {
	var s int64
	for _, b := range seed {
		s = s<<8 | int64(b)
	}
	return rand.New(rand.NewSource(s))
}
