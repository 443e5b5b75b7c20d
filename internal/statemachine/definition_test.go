// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateCreated State = iota
	stateRunning
	stateDone
)

const (
	triggerStart Trigger = iota
	triggerFinish
)

func TestDefinitionFire(t *testing.T) {
	fired := 0
	def := NewBuilder(stateCreated, stateDone).
		Add(stateCreated, triggerStart, stateRunning, func() error {
			fired++
			return nil
		}).
		Add(stateRunning, triggerFinish, stateDone, nil).
		Build()

	assert.Equal(t, stateCreated, def.Initial())
	assert.False(t, def.IsFinal(stateCreated))
	assert.True(t, def.IsFinal(stateDone))

	next, ok, err := def.Fire(stateCreated, triggerStart)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, stateRunning, next)
	assert.Equal(t, 1, fired)

	next, ok, err = def.Fire(stateRunning, triggerFinish)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, stateDone, next)
}

func TestDefinitionUnknownTransition(t *testing.T) {
	def := NewBuilder(stateCreated, stateDone).
		Add(stateCreated, triggerStart, stateRunning, nil).
		Build()

	next, ok, err := def.Fire(stateCreated, triggerFinish)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, stateCreated, next)

	assert.True(t, def.CanFire(stateCreated, triggerStart))
	assert.False(t, def.CanFire(stateRunning, triggerStart))
}

func TestDefinitionDuplicateRegistrationPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewBuilder(stateCreated, stateDone).
			Add(stateCreated, triggerStart, stateRunning, nil).
			Add(stateCreated, triggerStart, stateDone, nil)
	})
}
