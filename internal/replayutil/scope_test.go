// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package replayutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingScope struct {
	incs          int
	distributions int
}

func (c *countingScope) Inc(string, map[string]string)                         { c.incs++ }
func (c *countingScope) RecordDistribution(string, float64, map[string]string) { c.distributions++ }

func TestReplayAwareScopeSuppressesDuringReplay(t *testing.T) {
	underlying := &countingScope{}
	replaying := true
	scope := NewReplayAwareScope(underlying, func() bool { return replaying })

	scope.Inc("replay.events", nil)
	scope.RecordDistribution("replay.batch_size", 10, nil)
	assert.Equal(t, 0, underlying.incs)
	assert.Equal(t, 0, underlying.distributions)

	replaying = false
	scope.Inc("replay.events", nil)
	scope.RecordDistribution("replay.batch_size", 10, nil)
	assert.Equal(t, 1, underlying.incs)
	assert.Equal(t, 1, underlying.distributions)
}

func TestNilUnderlyingDefaultsToNoop(t *testing.T) {
	scope := NewReplayAwareScope(nil, func() bool { return false })
	assert.NotPanics(t, func() {
		scope.Inc("anything", nil)
		scope.RecordDistribution("anything", 1, map[string]string{"k": "v"})
	})
}

func TestDeterministicRandomIsReproducible(t *testing.T) {
	seed1 := DeterministicRandomSeed("run-1", 1)
	seed2 := DeterministicRandomSeed("run-1", 1)
	assert.Equal(t, seed1, seed2)
	assert.NotEqual(t, seed1, DeterministicRandomSeed("run-1", 2))
	assert.NotEqual(t, seed1, DeterministicRandomSeed("run-2", 1))

	r1 := NewDeterministicRandom(seed1)
	r2 := NewDeterministicRandom(seed2)
	for i := 0; i < 5; i++ {
		assert.Equal(t, r1.Int63(), r2.Int63())
	}
}
