// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package uuid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeterministicIsStable(t *testing.T) {
	a := NewDeterministic("run-1", 7)
	b := NewDeterministic("run-1", 7)
	assert.Equal(t, a, b)
	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a, NewDeterministic("run-1", 8))
	assert.NotEqual(t, a, NewDeterministic("run-2", 7))
}

func TestParseRoundTrip(t *testing.T) {
	original := MustNewUUID()
	parsed, err := ParseUUID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	_, err = ParseUUID("not-a-uuid")
	assert.Error(t, err)
}

func TestMustParsePanicsOnGarbage(t *testing.T) {
	assert.Panics(t, func() { MustParseUUID("garbage") })
	assert.Nil(t, MustParsePtrUUID(nil))
}
